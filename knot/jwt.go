package knot

import (
	"fmt"
	"strconv"

	gojwt "github.com/golang-jwt/jwt/v5"
)

type AccessToken struct {
	UserId   Id
	Username string
}

// ParseAccessTokenUnverified extracts claims without verifying the
// signature. The token is only trusted to identify which user this
// client fetches and classifies data for; the server verifies it.
func ParseAccessTokenUnverified(token string) (*AccessToken, error) {
	parser := gojwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, gojwt.MapClaims{})
	if err != nil {
		return nil, err
	}

	claims := parsed.Claims.(gojwt.MapClaims)

	accessToken := &AccessToken{}

	for _, claim := range []string{"userId", "user_id", "uid", "sub"} {
		if value, ok := claims[claim]; ok {
			if userId, err := claimId(value); err == nil {
				accessToken.UserId = userId
				break
			}
		}
	}
	if accessToken.UserId == 0 {
		return nil, fmt.Errorf("access token carries no user id claim")
	}

	for _, claim := range []string{"username", "name"} {
		if value, ok := claims[claim].(string); ok {
			accessToken.Username = value
			break
		}
	}

	return accessToken, nil
}

func claimId(value any) (Id, error) {
	switch v := value.(type) {
	case float64:
		return Id(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported id claim type %T", value)
	}
}
