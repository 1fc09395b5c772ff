package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignatureValidity is how long a signed leg stays bookable after its target
// time. Customers may retry a failed booking, but not days later.
const SignatureValidity = 24 * time.Hour

// ErrInvalidSignature indicates a connection signature that was not issued by
// this system or no longer matches the leg.
var ErrInvalidSignature = errors.New("invalid connection signature")

// legClaims binds a signature to the exact leg that was offered.
type legClaims struct {
	jwt.RegisteredClaims

	StartLat      float64 `json:"slat"`
	StartLng      float64 `json:"slng"`
	TargetLat     float64 `json:"tlat"`
	TargetLng     float64 `json:"tlng"`
	StartTime     int64   `json:"st"`
	TargetTime    int64   `json:"tt"`
	RequestedTime int64   `json:"rt"`
	StartFixed    bool    `json:"sf"`
	TourID        *int64  `json:"tid,omitempty"`
}

// Signer issues and validates connection signatures.
type Signer struct {
	signingKey []byte
	issuer     string
	now        func() time.Time
}

// SignerConfig holds configuration for the signer.
type SignerConfig struct {
	// SigningKey is the secret key used to sign connections.
	SigningKey string

	// Issuer is the issuer claim for signatures.
	Issuer string

	// Now overrides the clock used for issuing and expiry checks.
	Now func() time.Time
}

// NewSigner creates a connection signer.
func NewSigner(cfg SignerConfig) *Signer {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Signer{signingKey: []byte(cfg.SigningKey), issuer: cfg.Issuer, now: now}
}

// Sign produces the signature for one offered leg.
func (s *Signer) Sign(c ExpectedConnection) (string, error) {
	claims := legClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(time.UnixMilli(c.TargetTime).Add(SignatureValidity)),
		},
		StartLat:      c.Start.Lat,
		StartLng:      c.Start.Lng,
		TargetLat:     c.Target.Lat,
		TargetLng:     c.Target.Lng,
		StartTime:     c.StartTime,
		TargetTime:    c.TargetTime,
		RequestedTime: c.RequestedTime,
		StartFixed:    c.StartFixed,
		TourID:        c.TourID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signature, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("signing connection: %w", err)
	}
	return signature, nil
}

// Validate checks that the connection's signature was issued by this system
// for exactly this leg.
func (s *Signer) Validate(c ExpectedConnection) error {
	token, err := jwt.ParseWithClaims(c.Signature, &legClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err.Error())
	}

	claims, ok := token.Claims.(*legClaims)
	if !ok || !token.Valid {
		return ErrInvalidSignature
	}

	if claims.StartLat != c.Start.Lat ||
		claims.StartLng != c.Start.Lng ||
		claims.TargetLat != c.Target.Lat ||
		claims.TargetLng != c.Target.Lng ||
		claims.StartTime != c.StartTime ||
		claims.TargetTime != c.TargetTime ||
		claims.RequestedTime != c.RequestedTime ||
		claims.StartFixed != c.StartFixed ||
		!equalTourID(claims.TourID, c.TourID) {
		return fmt.Errorf("%w: leg does not match signed offer", ErrInvalidSignature)
	}
	return nil
}

func equalTourID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
