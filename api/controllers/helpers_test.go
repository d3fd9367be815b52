package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"
)

func newRouteRequest(method, url, paramKey, paramValue string) *http.Request {
	req := httptest.NewRequest(method, url, nil)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(paramKey, paramValue)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}
