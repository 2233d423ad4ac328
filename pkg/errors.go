// Package pkg, projede paylaşılan utility'leri barındırır.
// Bu dosya domain-level error tanımlarını içerir.
//
// Karşılaştırma her zaman errors.Is ile yapılır, wrap edilmiş error'lar da eşleşir:
//
//	if errors.Is(err, pkg.ErrAlreadyExists) { ... }
package pkg

import "errors"

// Domain-level error'lar.
// Handler katmanı bunları HTTP status code'larına, chatapi client'ı ise
// status code'ları tekrar bu error'lara map'ler.
var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrAlreadyExists   = errors.New("already exists")
	ErrBadRequest      = errors.New("bad request")
	ErrTooManyRequests = errors.New("too many requests")
	ErrInternal        = errors.New("internal error")
)
