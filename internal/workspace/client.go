package workspace

import (
	"context"
	"fmt"

	"github.com/databricks/databricks-sdk-go"
	"github.com/databricks/databricks-sdk-go/service/iam"

	"github.com/kubiyabot/databricks-mcp/internal/auth"
	clierrors "github.com/kubiyabot/databricks-mcp/internal/errors"
)

// Identity is the workspace user a request runs as
type Identity struct {
	DisplayName string `json:"display_name"`
	UserName    string `json:"user_name"`
	Active      bool   `json:"active"`
}

// IdentityResolver resolves the identity behind the current request
type IdentityResolver interface {
	CurrentUser(ctx context.Context) (*Identity, error)
}

// CurrentUserAPI is the slice of the workspace client this package uses
type CurrentUserAPI interface {
	Me(ctx context.Context) (*iam.User, error)
}

// ClientFunc builds a workspace handle for the given SDK configuration
type ClientFunc func(cfg *databricks.Config) (CurrentUserAPI, error)

// NewSDKClient is the ClientFunc backed by the Databricks Go SDK
func NewSDKClient(cfg *databricks.Config) (CurrentUserAPI, error) {
	w, err := databricks.NewWorkspaceClient(cfg)
	if err != nil {
		return nil, err
	}
	return w.CurrentUser, nil
}

// Factory builds workspace handles authenticated either with the delegated
// user token or, when none is present, with ambient local credentials.
type Factory struct {
	host      string
	tokens    auth.TokenSource
	newClient ClientFunc
}

// NewFactory creates a workspace client factory. A nil ClientFunc selects
// the Databricks SDK.
func NewFactory(host string, tokens auth.TokenSource, newClient ClientFunc) *Factory {
	if newClient == nil {
		newClient = NewSDKClient
	}
	return &Factory{
		host:      host,
		tokens:    tokens,
		newClient: newClient,
	}
}

// SDKConfig returns the SDK configuration for the current request
func (f *Factory) SDKConfig(ctx context.Context) (*databricks.Config, error) {
	token, ok, err := f.tokens.UserToken(ctx)
	if err != nil {
		return nil, err
	}

	if !ok {
		// Local development: CLI profile, environment or OAuth U2M
		return &databricks.Config{Host: f.host}, nil
	}

	return &databricks.Config{
		Host:     f.host,
		Token:    token,
		AuthType: "pat",
	}, nil
}

// Client returns a workspace handle for the current request
func (f *Factory) Client(ctx context.Context) (CurrentUserAPI, error) {
	cfg, err := f.SDKConfig(ctx)
	if err != nil {
		return nil, err
	}

	client, err := f.newClient(cfg)
	if err != nil {
		return nil, clierrors.ConfigErrorWithContext(
			fmt.Errorf("failed to create workspace client: %w", err),
			"Check DATABRICKS_HOST and local authentication (databricks auth login).",
		)
	}
	return client, nil
}

// CurrentUser implements IdentityResolver
func (f *Factory) CurrentUser(ctx context.Context) (*Identity, error) {
	client, err := f.Client(ctx)
	if err != nil {
		return nil, err
	}

	user, err := client.Me(ctx)
	if err != nil {
		return nil, err
	}

	return &Identity{
		DisplayName: user.DisplayName,
		UserName:    user.UserName,
		Active:      user.Active,
	}, nil
}
