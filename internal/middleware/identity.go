package middleware

import (
	"errors"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hostel-occupancy/internal/model"
	"github.com/iliyamo/hostel-occupancy/internal/service"
)

const actorKey = "actor"

// ActorFrom returns the caller stored by JWTAuth.
func ActorFrom(c echo.Context) (service.Actor, bool) {
	a, ok := c.Get(actorKey).(service.Actor)
	return a, ok
}

func actorFromClaims(claims jwt.MapClaims) (service.Actor, error) {
	uid, ok := toUint(claims["sub"])
	if !ok || uid == 0 {
		return service.Actor{}, errors.New("invalid subject claim")
	}
	role, _ := claims["role"].(string)
	if role == "" {
		return service.Actor{}, errors.New("missing role claim")
	}
	a := service.Actor{UserID: uid, Role: model.Role(role)}
	if v, present := claims["hostel_id"]; present && v != nil {
		hid, ok := toUint(v)
		if !ok {
			return service.Actor{}, errors.New("invalid hostel_id claim")
		}
		a.HostelID = &hid
	}
	return a, nil
}

// toUint accepts the shapes a numeric claim takes after JSON decoding.
func toUint(v any) (uint64, bool) {
	switch t := v.(type) {
	case float64:
		if t < 0 || t != float64(uint64(t)) {
			return 0, false
		}
		return uint64(t), true
	case string:
		n, err := strconv.ParseUint(t, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// rateKeyID identifies the caller for rate limiting: the user id when
// authenticated, otherwise the client IP.
func rateKeyID(c echo.Context) string {
	if a, ok := ActorFrom(c); ok {
		return "user:" + strconv.FormatUint(a.UserID, 10)
	}
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}
