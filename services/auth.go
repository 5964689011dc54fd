package services

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidLink  = errors.New("invalid or expired login link")
	ErrInvalidToken = errors.New("invalid token")
)

type AuthService struct {
	mu      sync.Mutex
	links   map[string]pendingLink
	secret  []byte
	ttl     time.Duration
	linkTTL time.Duration
	smtp    SMTPConfig
	log     *slog.Logger
	now     func() time.Time
}

type pendingLink struct {
	email   string
	expires time.Time
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

func (c SMTPConfig) configured() bool {
	return c.Host != "" && c.Port != "" && c.Username != "" && c.Password != ""
}

func NewAuthService(cfg Config, log *slog.Logger) *AuthService {
	if log == nil {
		log = slog.Default()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 7 * 24 * time.Hour
	}
	if cfg.MagicLinkTTL <= 0 {
		cfg.MagicLinkTTL = 15 * time.Minute
	}
	if cfg.JWTSecret == "" || cfg.JWTSecret == defaultJWTSecret {
		cfg.JWTSecret = defaultJWTSecret
		log.Warn("JWT_SECRET is not set, using the development secret")
	}
	return &AuthService{
		links:   make(map[string]pendingLink),
		secret:  []byte(cfg.JWTSecret),
		ttl:     cfg.TokenTTL,
		linkTTL: cfg.MagicLinkTTL,
		smtp:    cfg.SMTP,
		log:     log,
		now:     time.Now,
	}
}

// GenerateMagicLink creates a one-time login link for email and mails it
// when SMTP is configured.
func (s *AuthService) GenerateMagicLink(email string, baseURL string) (string, error) {
	token, err := secureToken(32)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.mu.Lock()
	now := s.now()
	for t, l := range s.links {
		if now.After(l.expires) {
			delete(s.links, t)
		}
	}
	s.links[token] = pendingLink{email: email, expires: now.Add(s.linkTTL)}
	s.mu.Unlock()

	link := fmt.Sprintf("%s/api/auth/magic-link?token=%s", baseURL, url.QueryEscape(token))

	if s.smtp.Host != "" {
		if err := s.sendMagicLinkEmail(email, link); err != nil {
			s.log.Warn("failed to send login email", "email", email, "error", err)
		}
	}
	return link, nil
}

// VerifyMagicLinkToken consumes a login link token and returns its email.
func (s *AuthService) VerifyMagicLinkToken(token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[token]
	if !ok {
		return "", ErrInvalidLink
	}
	delete(s.links, token)
	if s.now().After(l.expires) {
		return "", ErrInvalidLink
	}
	return l.email, nil
}

// CreateJWT issues a bearer token for email.
func (s *AuthService) CreateJWT(email string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(s.ttl).Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyJWT checks a bearer token and returns the email it was issued for.
func (s *AuthService) VerifyJWT(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	email, ok := claims["email"].(string)
	if !ok || email == "" {
		return "", fmt.Errorf("%w: email claim missing", ErrInvalidToken)
	}
	return email, nil
}

func secureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (s *AuthService) sendMagicLinkEmail(to, link string) error {
	if !s.smtp.configured() {
		return errors.New("SMTP not fully configured")
	}
	auth := smtp.PlainAuth("", s.smtp.Username, s.smtp.Password, s.smtp.Host)

	from := s.smtp.From
	if from == "" {
		from = s.smtp.Username
	}
	body := fmt.Sprintf("Click the link below to sign in to your boards:\n\n%s\n\nIf you didn't request this link, you can safely ignore this email.", link)
	message := fmt.Sprintf("From: %s\nTo: %s\nSubject: Your sign-in link\n\n%s", from, to, body)

	addr := fmt.Sprintf("%s:%s", s.smtp.Host, s.smtp.Port)
	if err := smtp.SendMail(addr, auth, from, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
