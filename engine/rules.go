package engine

import (
	"time"

	"github.com/jonwraymond/offlinesync/fetch"
	"github.com/jonwraymond/offlinesync/route"
	"github.com/jonwraymond/offlinesync/strategy"
)

const day = 24 * time.Hour

// DefaultRules returns the clinic app's runtime caching rules for an API at
// apiOrigin, in priority order.
func DefaultRules(apiOrigin string) []route.Rule {
	api := route.Origin(apiOrigin)
	return []route.Rule{
		{
			Name:  "pages-cache",
			Match: route.Navigation(),
			Strategy: strategy.Config{
				Kind:           strategy.NetworkFirst,
				CacheName:      "pages-cache",
				NetworkTimeout: 3 * time.Second,
				Expiration:     strategy.Expiration{MaxEntries: 50, MaxAge: 7 * day},
			},
		},
		{
			Name:  "clinicas-pages",
			Match: route.PathPrefix("/paciente/clinicas/"),
			Strategy: strategy.Config{
				Kind:       strategy.StaleWhileRevalidate,
				CacheName:  "clinicas-pages",
				Expiration: strategy.Expiration{MaxEntries: 50, MaxAge: day},
			},
		},
		{
			Name: "clinicas-api-cache",
			Match: route.All(
				api,
				route.PathPrefix("/api/clinicas/"),
				route.Not(route.PathContains("horarios_disponibles")),
			),
			Strategy: strategy.Config{
				Kind:           strategy.NetworkFirst,
				CacheName:      "clinicas-api-cache",
				NetworkTimeout: 3 * time.Second,
				Expiration:     strategy.Expiration{MaxEntries: 100, MaxAge: 7 * day},
			},
		},
		{
			Name:  "api-cache",
			Match: route.All(api, route.PathPrefix("/api/")),
			Strategy: strategy.Config{
				Kind:           strategy.NetworkFirst,
				CacheName:      "api-cache",
				NetworkTimeout: 4 * time.Second,
				Expiration:     strategy.Expiration{MaxEntries: 200, MaxAge: 7 * day},
			},
		},
		{
			Name:  "images-cache",
			Match: route.Destinations(fetch.DestImage),
			Strategy: strategy.Config{
				Kind:       strategy.CacheFirst,
				CacheName:  "images-cache",
				Expiration: strategy.Expiration{MaxEntries: 100, MaxAge: 30 * day},
			},
		},
		{
			Name:  "static-cache",
			Match: route.Destinations(fetch.DestScript, fetch.DestStyle, fetch.DestFont),
			Strategy: strategy.Config{
				Kind:      strategy.StaleWhileRevalidate,
				CacheName: "static-cache",
			},
		},
	}
}
