package external

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// DefaultBedrockRegion is used when no region is configured.
const DefaultBedrockRegion = "us-east-1"

// BedrockSigningTransport signs every request for the bedrock service with
// AWS SigV4 before handing it to the base transport.
type BedrockSigningTransport struct {
	credentials aws.CredentialsProvider
	region      string
	signer      *v4.Signer
	base        http.RoundTripper
	now         func() time.Time
}

// NewBedrockSigningTransport builds a signing transport from explicit
// credentials. A nil base uses http.DefaultTransport.
func NewBedrockSigningTransport(creds aws.CredentialsProvider, region string, base http.RoundTripper) *BedrockSigningTransport {
	if region == "" {
		region = DefaultBedrockRegion
	}
	if base == nil {
		base = http.DefaultTransport
	}
	return &BedrockSigningTransport{
		credentials: creds,
		region:      region,
		signer:      v4.NewSigner(),
		base:        base,
		now:         time.Now,
	}
}

// NewBedrockClient returns an HTTP client whose requests are signed with
// credentials from the standard AWS chain (env, shared config, IMDS).
func NewBedrockClient(ctx context.Context, region string) (*http.Client, error) {
	if region == "" {
		region = DefaultBedrockRegion
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if _, err := cfg.Credentials.Retrieve(ctx); err != nil {
		return nil, fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}
	return &http.Client{Transport: NewBedrockSigningTransport(cfg.Credentials, region, nil)}, nil
}

// BedrockEndpoint returns the invoke URL for modelID in region.
func BedrockEndpoint(region, modelID string) string {
	if region == "" {
		region = DefaultBedrockRegion
	}
	return fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com/model/%s/invoke", region, modelID)
}

// RoundTrip implements http.RoundTripper.
func (t *BedrockSigningTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body for signing: %w", err)
		}
		_ = req.Body.Close()
	}

	creds, err := t.credentials.Retrieve(req.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}

	// RoundTrippers must not modify the caller's request.
	signed := req.Clone(req.Context())
	signed.Body = io.NopCloser(bytes.NewReader(body))
	signed.ContentLength = int64(len(body))

	sum := sha256.Sum256(body)
	if err := t.signer.SignHTTP(req.Context(), creds, signed, hex.EncodeToString(sum[:]), "bedrock", t.region, t.now()); err != nil {
		return nil, fmt.Errorf("failed to sign Bedrock request: %w", err)
	}
	return t.base.RoundTrip(signed)
}
