package credentials

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// providerSource names these credentials in SDK diagnostics.
const providerSource = "IoTRoleAliasProvider"

// fetcher is the part of Broker the Provider needs.
type fetcher interface {
	Fetch(ctx context.Context) (Credentials, error)
}

// Provider implements aws.CredentialsProvider on top of a Broker.
//
// The first Retrieve fetches credentials; later calls return the same
// value without contacting the endpoint again. A failed fetch is not
// cached, so the next Retrieve tries again.
type Provider struct {
	broker fetcher

	mu     sync.Mutex
	cached *Credentials
}

// NewProvider wraps a Broker for use by SDK clients.
func NewProvider(b *Broker) *Provider {
	return &Provider{broker: b}
}

// Retrieve returns the run's credentials, fetching them on first use.
func (p *Provider) Retrieve(ctx context.Context) (aws.Credentials, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached == nil {
		creds, err := p.broker.Fetch(ctx)
		if err != nil {
			return aws.Credentials{}, err
		}
		p.cached = &creds
	}

	c := p.cached
	return aws.Credentials{
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		SessionToken:    c.SessionToken,
		Source:          providerSource,
		CanExpire:       !c.Expiration.IsZero(),
		Expires:         c.Expiration,
	}, nil
}

var _ aws.CredentialsProvider = (*Provider)(nil)
