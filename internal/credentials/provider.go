// Package credentials vends short-lived object storage credentials.
package credentials

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
)

// Credentials are the keys a Stage embeds in its COPY statement.
type Credentials struct {
	AccessKey    string
	SecretKey    string
	SessionToken string
}

// String keeps secrets out of logs and %v formatting
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{AccessKey: %s, SecretKey: ***}", maskKey(c.AccessKey))
}

// Provider resolves a credential reference to credentials. Implementations
// must not cache: every call returns freshly retrieved values.
type Provider interface {
	GetCredentials(ctx context.Context, ref string) (Credentials, error)
}

// ChainOptions configures the lookup chain
type ChainOptions struct {
	// Static keys take precedence when both are set
	AccessKey    string
	SecretKey    string
	SessionToken string

	// CredentialsFile overrides ~/.aws/credentials; the ref names the profile
	CredentialsFile string

	// DisableIAM skips the EC2/ECS instance-role lookup
	DisableIAM bool
}

// ChainProvider looks credentials up in order: static keys, environment,
// the shared credentials file profile named by ref, then the instance role.
type ChainProvider struct {
	opts ChainOptions
}

func NewChainProvider(opts ChainOptions) *ChainProvider {
	return &ChainProvider{opts: opts}
}

func (p *ChainProvider) GetCredentials(ctx context.Context, ref string) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}

	// A new chain per call so nothing outlives this invocation
	chain := miniocreds.NewChainCredentials(p.providers(ref))
	value, err := chain.Get()
	if err != nil {
		return Credentials{}, fmt.Errorf("retrieve credentials %q: %w", ref, err)
	}
	if value.AccessKeyID == "" || value.SecretAccessKey == "" {
		return Credentials{}, fmt.Errorf("no credentials found for %q", ref)
	}

	return Credentials{
		AccessKey:    value.AccessKeyID,
		SecretKey:    value.SecretAccessKey,
		SessionToken: value.SessionToken,
	}, ctx.Err()
}

func (p *ChainProvider) providers(ref string) []miniocreds.Provider {
	var chain []miniocreds.Provider

	if p.opts.AccessKey != "" && p.opts.SecretKey != "" {
		chain = append(chain, &miniocreds.Static{Value: miniocreds.Value{
			AccessKeyID:     p.opts.AccessKey,
			SecretAccessKey: p.opts.SecretKey,
			SessionToken:    p.opts.SessionToken,
			SignerType:      miniocreds.SignatureV4,
		}})
	}

	chain = append(chain, &miniocreds.EnvAWS{})

	if profile := strings.TrimSpace(ref); profile != "" {
		chain = append(chain, &miniocreds.FileAWSCredentials{
			Filename: p.opts.CredentialsFile,
			Profile:  profile,
		})
	}

	if !p.opts.DisableIAM {
		chain = append(chain, &miniocreds.IAM{Client: &http.Client{Transport: http.DefaultTransport}})
	}
	return chain
}

func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + strings.Repeat("*", len(key)-4)
}
