package http

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/trendora/storefront/internal/cart"
	"github.com/trendora/storefront/internal/domain"
	"github.com/trendora/storefront/internal/identity"
)

const (
	guestCookieName   = "guest_id"
	sessionCookieName = "session_token"
)

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = fmt.Sprintf("req-%d", time.Now().UnixNano())
		}

		ctx := context.WithValue(r.Context(), "request_id", requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityMiddleware resolves the cart owner for the request: authenticated
// when a valid session token is present, guest otherwise. A brand-new
// visitor gets a guest ID cookie. When a request arrives carrying both a
// session and a leftover guest cookie, the guest cart is folded into the
// user's cart before the handler runs, so no mutation can observe the stale
// guest cart.
func IdentityMiddleware(provider identity.Provider, carts *cart.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			guestID := guestIDFromRequest(r)
			token := sessionTokenFromRequest(r)

			var owner domain.Owner
			if token != "" {
				session, err := provider.CurrentSession(r.Context(), token)
				switch {
				case err == nil:
					owner = domain.Owner{Mode: domain.OwnerModeUser, ID: session.UserID}
					if guestID != "" {
						if mergeErr := carts.MergeGuestCart(r.Context(), guestID, session.UserID); mergeErr != nil {
							log.Printf("guest cart merge failed: %v", mergeErr)
						} else {
							clearGuestCookie(w)
						}
					}
				case errors.Is(err, identity.ErrNoSession):
					// token expired or bogus, fall through to guest mode
				default:
					log.Printf("identity lookup failed, treating as guest: %v", err)
				}
			}

			if owner.ID == "" {
				if guestID == "" {
					guestID = uuid.New().String()
					http.SetCookie(w, &http.Cookie{
						Name:     guestCookieName,
						Value:    guestID,
						Path:     "/",
						HttpOnly: true,
						MaxAge:   90 * 24 * 60 * 60,
					})
				}
				owner = domain.Owner{Mode: domain.OwnerModeGuest, ID: guestID}
			}

			ctx := context.WithValue(r.Context(), "owner", owner)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminKeyMiddleware guards back-office routes with a shared key.
func AdminKeyMiddleware(adminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminKey == "" || r.Header.Get("X-Admin-Key") != adminKey {
				respondError(w, http.StatusForbidden, "permission_denied", "admin key required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ownerFromContext(ctx context.Context) (domain.Owner, bool) {
	owner, ok := ctx.Value("owner").(domain.Owner)
	return owner, ok
}

func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value("request_id").(string); ok {
		return requestID
	}
	return ""
}

func guestIDFromRequest(r *http.Request) string {
	if c, err := r.Cookie(guestCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.Header.Get("X-Guest-ID")
}

func sessionTokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if c, err := r.Cookie(sessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

func clearGuestCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     guestCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
