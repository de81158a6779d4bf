package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/mutualia/mutualia-backend/internal/middleware"
)

// Handlers groups every API handler registered under /api/v1
type Handlers struct {
	Auth          *AuthHandler
	CreditProduct *CreditProductHandler
	Associate     *AssociateHandler
	Loan          *LoanHandler
}

// RegisterRoutes sets up all API routes. Every route requires a resolved tenant;
// bulk import is additionally throttled per tenant.
func RegisterRoutes(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, importLimiter *middleware.RateLimiter, h Handlers) {
	// API version 1
	api := e.Group("/api/v1")
	api.Use(authMiddleware.Authenticate())

	api.GET("/auth/me", h.Auth.Me)

	// Credit product routes
	products := api.Group("/products")
	products.POST("", h.CreditProduct.CreateProduct)
	products.GET("", h.CreditProduct.GetProducts)
	products.GET("/:id", h.CreditProduct.GetProduct)
	products.POST("/:id/deactivate", h.CreditProduct.DeactivateProduct)

	// Associate routes
	associates := api.Group("/associates")
	associates.POST("", h.Associate.CreateAssociate)
	associates.GET("", h.Associate.GetAssociates)
	associates.GET("/:id", h.Associate.GetAssociate)

	// Loan routes
	loans := api.Group("/loans")
	loans.POST("", h.Loan.CreateLoan)
	loans.POST("/preview", h.Loan.PreviewLoan)
	loans.POST("/import", h.Loan.ImportLoans, middleware.RateLimitMiddleware(importLimiter))
	loans.GET("", h.Loan.GetLoans)
	loans.GET("/:id", h.Loan.GetLoan)
	loans.GET("/:id/installments", h.Loan.GetInstallments)
	loans.POST("/:id/cancel", h.Loan.CancelLoan)
}
