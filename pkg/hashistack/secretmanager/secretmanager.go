package secretmanager

import (
	vault "github.com/hashicorp/vault-client-go"
	"go.uber.org/fx"
)

var Module = fx.Module("secretmanager", fx.Provide(ProvideVault))

// ProvideVault builds a Vault client from VAULT_ADDR/VAULT_TOKEN. The config
// loader treats the client as optional; environments without Vault simply
// omit this module.
func ProvideVault() (*vault.Client, error) {
	client, err := vault.New(
		vault.WithEnvironment(),
	)
	if err != nil {
		return nil, err
	}

	return client, nil
}
