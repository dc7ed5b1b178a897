package s3select

import (
	"fmt"

	"github.com/minio/minio-go/v7/pkg/credentials"
)

// CredentialChain returns the credential sources for cfg, highest rank
// first: the static pair when both keys are set, then the AWS and MinIO
// environment variables, the AWS shared credentials file and the instance
// metadata service.
func CredentialChain(cfg Config) []credentials.Provider {
	var chain []credentials.Provider
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		chain = append(chain, &credentials.Static{
			Value: credentials.Value{
				AccessKeyID:     cfg.AccessKey,
				SecretAccessKey: cfg.SecretKey,
				SignerType:      credentials.SignatureV4,
			},
		})
	}
	return append(chain,
		&credentials.EnvAWS{},
		&credentials.EnvMinio{},
		&credentials.FileAWSCredentials{},
		&credentials.IAM{},
	)
}

// resolveCredentials tries each provider in order and returns credentials
// built on the first one that yields an access key. A provider declines by
// failing or by returning an empty key.
func resolveCredentials(chain []credentials.Provider) (*credentials.Credentials, error) {
	var declined []error
	for _, p := range chain {
		v, err := p.RetrieveWithCredContext(nil)
		if err != nil {
			declined = append(declined, fmt.Errorf("%T: %w", p, err))
			continue
		}
		if v.AccessKeyID == "" || v.SignerType == credentials.SignatureAnonymous {
			continue
		}
		return credentials.New(p), nil
	}
	if len(declined) > 0 {
		return nil, fmt.Errorf("%w (%d providers failed, first: %v)", ErrNoCredentials, len(declined), declined[0])
	}
	return nil, ErrNoCredentials
}
