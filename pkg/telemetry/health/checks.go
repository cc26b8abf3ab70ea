package health

import (
	"context"
	"errors"

	"mercator-hq/ledger/pkg/audit"
	"mercator-hq/ledger/pkg/config"
)

// UpFunc receives the outcome of each provider check, typically a metrics
// gauge update.
type UpFunc func(provider string, up bool)

// ProviderCheck pings the first Pinger in p's decorator chain. Providers
// without one are reported healthy. onResult may be nil.
func ProviderCheck(p audit.DataProvider, onResult UpFunc) CheckFunc {
	name := audit.ProviderName(p)
	return func(ctx context.Context) error {
		pinger, ok := audit.As[audit.Pinger](p)
		if !ok {
			if onResult != nil {
				onResult(name, true)
			}
			return nil
		}

		err := pinger.Ping(ctx)
		if onResult != nil {
			onResult(name, err == nil)
		}
		return err
	}
}

// ConfigCheck fails when no configuration has been loaded or the loaded one
// no longer validates.
func ConfigCheck() CheckFunc {
	return func(ctx context.Context) error {
		cfg := config.GetConfig()
		if cfg == nil {
			return errors.New("configuration not loaded")
		}
		return config.Validate(cfg)
	}
}
