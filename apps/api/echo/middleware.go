package echoapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/user"
)

var errTooManyRequests = core.BusinessRule("Muitas requisicoes. Tente novamente em instantes.", http.StatusTooManyRequests)

// actorMiddleware loads the profile behind the JWT so that role and tenant changes apply immediately.
func actorMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
			if err != nil {
				if core.IsNotFound(err) {
					return errUnauthorized
				}
				return errors.Wrap(err, "finding context user")
			}
			if !usr.IsActive {
				return user.ErrAccountDeactivated
			}
			if usr.TenantID == "" {
				return errNoTenant
			}
			ctx.Set(userContextKey, usr)
			ctx.Set(actorContextKey, usr.Actor())
			return next(ctx)
		}
	}
}

func roleMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			actor, ok := contextActor(ctx)
			if !ok {
				return errUnauthorized
			}
			if len(roles) == 0 || actor.HasAnyRole(roles...) {
				return next(ctx)
			}
			return errForbidden
		}
	}
}

func methodNotAllowed(echo.Context) error {
	return errNotAllowed
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiter throttles the token-scoped public routes per client IP.
type ipLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastPrune time.Time
}

func newIPLimiter(perSecond float64) *ipLimiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := int(perSecond * 10)
	if burst < 5 {
		burst = 5
	}
	return &ipLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idle:     10 * time.Minute,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastPrune) > l.idle {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > l.idle {
				delete(l.visitors, k)
			}
		}
		l.lastPrune = now
	}

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.Allow()
}

func (l *ipLimiter) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if !l.allow(ctx.RealIP()) {
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}

// chain copies `base` before appending so groups never share a backing array.
func chain(base []echo.MiddlewareFunc, extra ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}
