// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Command cli runs one authorization code flow against an OIDC provider from
// the command line: it prints the authorization URL, serves the callback on
// localhost, exchanges the code, decodes the id_token and links the
// provider identity to a local user.
//
// Configuration is read from the environment (or a .env file):
//
//	OAUTH_CLIENT_ID      required
//	OAUTH_CLIENT_SECRET  required unless -pkce-only
//	OAUTH_ISSUER         required, the provider's issuer URL
//	OAUTH_PORT           required, the callback is http://localhost:$OAUTH_PORT/callback
//	OAUTH_PROVIDER_ID    optional, defaults to the issuer
//	OAUTH_PG_URL         optional, link identities in postgres instead of sqlite
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/codegrant/codegrant/identity"
	"github.com/codegrant/codegrant/identity/pgstore"
	"github.com/codegrant/codegrant/identity/sqlitestore"
	"github.com/codegrant/codegrant/oidc"
	"github.com/codegrant/codegrant/oidc/callback"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
)

// List of configuration environment variables
const (
	clientID     = "OAUTH_CLIENT_ID"
	clientSecret = "OAUTH_CLIENT_SECRET"
	issuer       = "OAUTH_ISSUER"
	port         = "OAUTH_PORT"
	providerID   = "OAUTH_PROVIDER_ID"
	pgURL        = "OAUTH_PG_URL"

	attemptExp = 2 * time.Minute
)

type config struct {
	clientID     string
	clientSecret oidc.ClientSecret
	issuer       string
	port         string
	providerID   string
	pgURL        string
}

func envConfig(secretNotRequired bool) (*config, error) {
	const op = "envConfig"
	c := &config{
		clientID:     os.Getenv(clientID),
		clientSecret: oidc.ClientSecret(os.Getenv(clientSecret)),
		issuer:       os.Getenv(issuer),
		port:         os.Getenv(port),
		providerID:   os.Getenv(providerID),
		pgURL:        os.Getenv(pgURL),
	}
	for k, v := range map[string]string{clientID: c.clientID, issuer: c.issuer, port: c.port} {
		if v == "" {
			return nil, fmt.Errorf("%s: %s is empty", op, k)
		}
	}
	if c.clientSecret == "" && !secretNotRequired {
		return nil, fmt.Errorf("%s: %s is empty.\n\n   Did you intend to use the -pkce-only option?", op, clientSecret)
	}
	if c.providerID == "" {
		c.providerID = c.issuer
	}
	return c, nil
}

func main() {
	pkceOnly := flag.Bool("pkce-only", false, "public client: use PKCE without a client secret")
	noPKCE := flag.Bool("no-pkce", false, "don't send a PKCE code challenge")
	authMethod := flag.String("auth-method", string(oidc.ClientSecretPost), "client authentication: client_secret or http_basic_auth")
	scopes := flag.String("scopes", "", "comma separated list of additional scopes to request")
	dbPath := flag.String("db", "identity.db", "sqlite database used to link identities (ignored when OAUTH_PG_URL is set)")
	envFile := flag.String("env-file", ".env", "optional file of environment variables")
	logLevel := flag.String("log-level", "info", "log level: trace, debug, info, warn or error")
	flag.Parse()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "codegrant-cli",
		Level:  hclog.LevelFromString(*logLevel),
		Output: os.Stderr,
	})

	if *pkceOnly && *noPKCE {
		fmt.Fprint(os.Stderr, "you can't request both: -pkce-only and -no-pkce\n")
		os.Exit(1)
	}
	method := oidc.AuthMethod(*authMethod)
	switch method {
	case oidc.ClientSecretPost, oidc.ClientSecretBasic:
	default:
		fmt.Fprintf(os.Stderr, "unsupported -auth-method %q\n", *authMethod)
		os.Exit(1)
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "unable to load %s: %s\n", *envFile, err)
		os.Exit(1)
	}
	env, err := envConfig(*pkceOnly)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n\n", err)
		os.Exit(1)
	}

	if err := run(logger, env, method, !*noPKCE, splitScopes(*scopes), *dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(logger hclog.Logger, env *config, method oidc.AuthMethod, usePKCE bool, scopes []string, dbPath string) error {
	// handle ctrl-c while waiting for the callback
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, closeStore, err := openStore(ctx, env.pgURL, dbPath)
	if err != nil {
		return err
	}
	defer closeStore()

	ep, err := oidc.DiscoverEndpoints(ctx, env.issuer)
	if err != nil {
		return err
	}
	if usePKCE && !ep.SupportsPKCE() {
		logger.Warn("provider doesn't advertise S256 PKCE support, sending a challenge anyway")
	}
	if !ep.SupportsAuthMethod(method) {
		logger.Warn("provider doesn't advertise the client authentication method", "method", method)
	}

	redirectURL := fmt.Sprintf("http://localhost:%s/callback", env.port)
	requestOptions := []oidc.Option{oidc.WithScopes(append([]string{"openid", "email", "profile"}, scopes...)...)}
	if usePKCE {
		requestOptions = append(requestOptions, oidc.WithPKCE())
	}
	oauthRequest, err := oidc.NewRequest(ep.AuthURL, env.clientID, redirectURL, requestOptions...)
	if err != nil {
		return err
	}
	authURL, err := oauthRequest.AuthURL()
	if err != nil {
		return fmt.Errorf("error getting auth url: %w", err)
	}

	cfg := &callback.Config{
		TokenEndpoint:   ep.TokenURL,
		ExchangeOptions: []oidc.Option{oidc.WithLogger(logger.Named("exchange"))},
		Logger:          logger.Named("callback"),
	}
	if env.clientSecret != "" {
		cfg.ClientPassword = &oidc.ClientPassword{
			ClientSecret:     env.clientSecret,
			AuthenticateWith: method,
		}
	}

	successFn, successCh := success()
	errorFn, failedCh := failed()
	handler, err := callback.AuthCode(cfg, &callback.SingleRequestReader{Request: oauthRequest}, successFn, errorFn)
	if err != nil {
		return fmt.Errorf("error creating auth code handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/login", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, authURL, http.StatusFound)
	})
	// response_mode=form_post providers POST the callback
	r.Get("/callback", handler)
	r.Post("/callback", handler)

	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%s", env.port))
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	defer srv.Close()

	srvCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvCh <- err
		}
	}()

	fmt.Fprintf(os.Stderr, "Complete the login via your OAuth provider. Visit:\n\n    %s\n\n(or http://localhost:%s/login)\n\n", authURL, env.port)

	// Wait for either the callback to finish, SIGINT to be received or the
	// attempt to expire
	select {
	case err := <-srvCh:
		return fmt.Errorf("server closed with error: %w", err)
	case resp := <-successCh:
		if resp.Error != nil {
			return fmt.Errorf("channel received success with error: %w", resp.Error)
		}
		printToken(resp.Token)
		printUserInfo(ctx, ep.UserInfoURL, resp.Token)
		return linkUser(ctx, logger, store, env.providerID, resp.Token)
	case err := <-failedCh:
		if err != nil {
			return fmt.Errorf("channel received error: %w", err)
		}
		return errors.New("missing error from error channel.  try again?")
	case <-ctx.Done():
		return errors.New("interrupted")
	case <-time.After(attemptExp):
		return errors.New("timed out waiting for response from provider")
	}
}

func splitScopes(s string) []string {
	if s == "" {
		return nil
	}
	scopes := strings.Split(s, ",")
	for i := range scopes {
		scopes[i] = strings.TrimSpace(scopes[i])
	}
	return scopes
}

func openStore(ctx context.Context, pgURL, dbPath string) (identity.Store, func(), error) {
	if pgURL != "" {
		s, err := pgstore.New(ctx, pgURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	s, err := sqlitestore.Open(ctx, dbPath)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}

type idClaims struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

func linkUser(ctx context.Context, logger hclog.Logger, store identity.Store, providerID string, t *oidc.Token) error {
	const op = "linkUser"
	if t.IdToken == "" {
		return fmt.Errorf("%s: no id_token received, so there's no subject to link", op)
	}
	// the id_token came straight from the token endpoint over TLS
	claims, err := oidc.DecodeIDToken[idClaims](string(t.IdToken))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	printClaims(t.IdToken)

	link, err := identity.ProviderUserAuth(ctx, store, providerID, claims.Subject)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	user := link.ExistingUser
	if user == nil {
		user, err = link.CreateUser(ctx, map[string]string{"email": claims.Email, "name": claims.Name})
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		logger.Info("created user", "user_id", user.ID, "identity", link.ProviderIdentity.String())
	} else {
		logger.Info("found linked user", "user_id", user.ID, "identity", link.ProviderIdentity.String())
	}
	data, err := json.MarshalIndent(user, "", "    ")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	fmt.Fprintf(os.Stderr, "User:%s\n", data)
	return nil
}

type successResp struct {
	Token *oidc.Token // Token is populated when the callback successfully exchanges the auth code.
	Error error       // Error is populated when there's an error during the callback
}

func success() (callback.SuccessResponseFunc, <-chan successResp) {
	const op = "success"
	doneCh := make(chan successResp, 1)
	return func(state string, t *oidc.Token, w http.ResponseWriter, req *http.Request) {
		var responseErr error
		defer func() {
			doneCh <- successResp{t, responseErr}
		}()
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(successHTML)); err != nil {
			responseErr = fmt.Errorf("%s: %w", op, err)
			fmt.Fprintf(os.Stderr, "error writing successful response: %s", err)
		}
	}, doneCh
}

func failed() (callback.ErrorResponseFunc, <-chan error) {
	const op = "failed"
	doneCh := make(chan error, 1)
	return func(state string, r *callback.AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request) {
		var responseErr error
		defer func() {
			if _, err := w.Write([]byte(responseErr.Error())); err != nil {
				fmt.Fprintf(os.Stderr, "%s: error writing failed response: %s", op, err)
			}
			doneCh <- responseErr
		}()

		switch {
		case e != nil && errors.Is(e, oidc.ErrInvalidState):
			responseErr = e
			w.WriteHeader(http.StatusForbidden)
		case e != nil:
			responseErr = e
			w.WriteHeader(http.StatusInternalServerError)
		case r != nil:
			responseErr = fmt.Errorf("%s: callback error from oauth provider: %s", op, r)
			w.WriteHeader(http.StatusUnauthorized)
		default:
			responseErr = fmt.Errorf("%s: unknown error from callback", op)
			w.WriteHeader(http.StatusInternalServerError)
		}
	}, doneCh
}

func printClaims(t oidc.IdToken) {
	const op = "printClaims"
	var tokenClaims map[string]interface{}
	if err := t.Claims(&tokenClaims); err != nil {
		fmt.Fprintf(os.Stderr, "IdToken claims: error parsing: %s", err)
		return
	}
	idData, err := json.MarshalIndent(tokenClaims, "", "    ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s", op, err)
		return
	}
	fmt.Fprintf(os.Stderr, "IdToken claims:%s\n", idData)
}

func printUserInfo(ctx context.Context, userInfoURL string, t *oidc.Token) {
	const op = "printUserInfo"
	if userInfoURL == "" {
		return
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(t.OAuth2Token(time.Now())))
	resp, err := client.Get(userInfoURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: error getting UserInfo claims: %s\n", op, err)
		return
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "%s: error getting UserInfo claims: %d %s\n", op, resp.StatusCode, err)
		return
	}
	var infoClaims map[string]interface{}
	if err := json.Unmarshal(body, &infoClaims); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", op, err)
		return
	}
	infoData, err := json.MarshalIndent(infoClaims, "", "    ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", op, err)
		return
	}
	fmt.Fprintf(os.Stderr, "UserInfo claims:%s\n", infoData)
}

// printToken prints the token without redaction.
func printToken(t *oidc.Token) {
	const op = "printToken"
	tokenData, err := json.MarshalIndent(struct {
		AccessToken  string
		RefreshToken string
		IdToken      string
		TokenType    string
		ExpiresIn    int64
		Scope        string
	}{
		AccessToken:  string(t.AccessToken),
		RefreshToken: string(t.RefreshToken),
		IdToken:      string(t.IdToken),
		TokenType:    t.TokenType,
		ExpiresIn:    t.ExpiresIn,
		Scope:        t.Scope,
	}, "", "    ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s", op, err)
		return
	}
	fmt.Fprintf(os.Stderr, "channel received success.\nToken:%s\n", tokenData)
}
