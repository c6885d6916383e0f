package handler

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/raditia/duet-media/internal/config"
	"github.com/raditia/duet-media/internal/mediastore"
	"github.com/raditia/duet-media/internal/quote"
	"github.com/raditia/duet-media/internal/signing"
	"github.com/raditia/duet-media/internal/transform"
)

// Store is the slice of the media store admin API the handlers use.
type Store interface {
	ListResources(ctx context.Context, kind mediastore.Kind, cursor string) (*mediastore.ListResponse, error)
	Destroy(ctx context.Context, publicID string, kind mediastore.Kind) (*mediastore.DestroyResult, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Issuer   signing.Issuer
	Store    Store
	Pipeline *transform.Pipeline
	Quote    *quote.Service
	Config   *config.Config
	Logger   zerolog.Logger
}
