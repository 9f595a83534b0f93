// devtoken mints credentials for local development.
//
// Token mode (default) signs an access token for the given identity with the
// configured AUTH_JWT_SECRET. With --register the identity is also written to
// the configured user directory so tickets can be assigned to it.
//
// API key mode (--api-key ID) generates a random secret and prints the
// AUTH_API_KEYS entry holding its bcrypt hash together with the value callers
// send in the X-API-Key header.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/followup/ticket-service/internal/api/dto"
	"github.com/followup/ticket-service/internal/auth"
	"github.com/followup/ticket-service/internal/config"
	"github.com/followup/ticket-service/internal/domain"
	"github.com/followup/ticket-service/internal/persistence"
	"github.com/followup/ticket-service/internal/service"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	id         string
	email      string
	name       string
	role       string
	ttlMinutes int
	register   bool
	apiKeyID   string
	asJSON     bool
}

func run(args []string, stdout io.Writer) error {
	var opts options
	flagSet := pflag.NewFlagSet("devtoken", pflag.ContinueOnError)
	flagSet.StringVar(&opts.id, "id", "", "actor id (token subject)")
	flagSet.StringVar(&opts.email, "email", "", "actor email")
	flagSet.StringVar(&opts.name, "name", "", "actor display name")
	flagSet.StringVarP(&opts.role, "role", "r", string(domain.RoleAgent), "actor role")
	flagSet.IntVar(&opts.ttlMinutes, "ttl", 0, "token lifetime in minutes (default AUTH_ACCESS_TOKEN_TTL_MINUTES)")
	flagSet.BoolVar(&opts.register, "register", false, "also upsert the identity into the user directory")
	flagSet.StringVar(&opts.apiKeyID, "api-key", "", "generate an API key with this id instead of a token")
	flagSet.BoolVar(&opts.asJSON, "json", false, "print JSON instead of plain text")
	flagSet.SetOutput(stdout)

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	role := domain.Role(strings.ToLower(strings.TrimSpace(opts.role)))
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", opts.role)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if opts.apiKeyID != "" {
		return printAPIKey(stdout, opts, role, cfg.Auth.BcryptCost)
	}

	if strings.TrimSpace(opts.id) == "" {
		return fmt.Errorf("--id is required")
	}
	actor := domain.Actor{ID: strings.TrimSpace(opts.id), Email: opts.email, Name: opts.name, Role: role}

	if opts.register {
		if err := register(cfg, actor); err != nil {
			return err
		}
	}

	ttl := cfg.Auth.AccessTokenTTLMinutes
	if opts.ttlMinutes > 0 {
		ttl = opts.ttlMinutes
	}
	token, expiresAt, err := auth.NewTokenManager(cfg.Auth.JWTSecret, ttl).GenerateToken(actor)
	if err != nil {
		return err
	}

	if opts.asJSON {
		return json.NewEncoder(stdout).Encode(dto.AuthResponse{Token: token, ExpiresAt: expiresAt})
	}
	fmt.Fprintln(stdout, token)
	return nil
}

func printAPIKey(stdout io.Writer, opts options, role domain.Role, cost int) error {
	if strings.ContainsAny(opts.apiKeyID, ".:;") {
		return fmt.Errorf("api key id must not contain '.', ':' or ';'")
	}
	secret, err := auth.NewSecret()
	if err != nil {
		return err
	}
	hash, err := auth.HashSecret(secret, cost)
	if err != nil {
		return err
	}
	entry := fmt.Sprintf("%s:%s:%s", opts.apiKeyID, role, hash)
	header := opts.apiKeyID + "." + secret

	if opts.asJSON {
		return json.NewEncoder(stdout).Encode(map[string]string{
			"auth_api_keys_entry": entry,
			"x_api_key":           header,
		})
	}
	fmt.Fprintf(stdout, "AUTH_API_KEYS entry: %s\n", entry)
	fmt.Fprintf(stdout, "%s: %s\n", auth.APIKeyHeader, header)
	return nil
}

func register(cfg *config.Config, actor domain.Actor) error {
	ctx := context.Background()
	logger := zap.NewNop()
	stores, err := persistence.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	_, err = service.NewDirectoryService(stores.Users, logger).Upsert(ctx, actor.ID, service.UpsertUserInput{
		Email:  actor.Email,
		Name:   actor.Name,
		Role:   actor.Role,
		Active: true,
	})
	return err
}
