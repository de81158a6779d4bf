package domain

import (
	"context"
	"time"
)

// Tenant is a credit union operating on the platform. Every row below a tenant is isolated by TenantID.
type Tenant struct {
	ID        int32     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type TenantRepository interface {
	GetByID(ctx context.Context, id int32) (*Tenant, error)
	GetTenantIDByAuth0ID(ctx context.Context, auth0ID string) (int32, error)
}
