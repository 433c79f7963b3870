package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/pitwall/internal/adapters/provider"
	"github.com/okian/pitwall/internal/config"
	"github.com/okian/pitwall/internal/featurestore"
	"github.com/okian/pitwall/internal/ingest"
	"github.com/okian/pitwall/pkg/logger"
)

func syntheticConfig(t *testing.T) *config.Config {
	cfg := config.New()
	cfg.ProviderKind = config.ProviderSynthetic
	cfg.Years = []int{2022, 2023, 2024}
	cfg.SyntheticRounds = 5
	cfg.SyntheticDrivers = 6
	cfg.FeatureStorePath = filepath.Join(t.TempDir(), "features")
	return cfg
}

func TestConfigFromEnv(t *testing.T) {
	convey.Convey("Given pipeline settings in the environment", t, func() {
		_ = os.Setenv("PITWALL_PROVIDER_KIND", "synthetic")
		_ = os.Setenv("PITWALL_YEARS", "2023, 2024")
		_ = os.Setenv("PITWALL_ADDR", ":9080")
		defer func() {
			_ = os.Unsetenv("PITWALL_PROVIDER_KIND")
			_ = os.Unsetenv("PITWALL_YEARS")
			_ = os.Unsetenv("PITWALL_ADDR")
		}()

		convey.Convey("Then configuration should be loadable", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.ProviderKind, convey.ShouldEqual, config.ProviderSynthetic)
			convey.So(cfg.Seasons(), convey.ShouldResemble, []int{2023, 2024})
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
		})
	})
}

func TestNewProvider(t *testing.T) {
	convey.Convey("Given a configuration", t, func() {
		cfg := syntheticConfig(t)
		lg := logger.Nop()

		convey.Convey("When the synthetic provider is selected", func() {
			src, closer, err := newProvider(cfg, lg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(closer.Close(), convey.ShouldBeNil)

			convey.Convey("Then the generator is returned", func() {
				_, ok := src.(*provider.Synthetic)
				convey.So(ok, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the HTTP provider is selected with a cache", func() {
			cfg.ProviderKind = config.ProviderErgast
			cfg.ProviderCacheDir = t.TempDir()
			src, closer, err := newProvider(cfg, lg)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the client owns a closable cache", func() {
				_, ok := src.(*provider.Ergast)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(closer.Close(), convey.ShouldBeNil)
			})
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a synthetic configuration without a server", t, func() {
		ctx := context.Background()
		cfg := syntheticConfig(t)
		lg := logger.Nop()

		convey.Convey("When the pipeline runs", func() {
			err := run(ctx, cfg, lg)

			convey.Convey("Then it succeeds and leaves one feature set", func() {
				convey.So(err, convey.ShouldBeNil)
				store, err := featurestore.NewStore(cfg.FeatureStorePath)
				convey.So(err, convey.ShouldBeNil)
				sets, err := store.List(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(sets, convey.ShouldHaveLength, 1)
				convey.So(sets[0].Name, convey.ShouldEqual, cfg.FeatureSetName)
			})
		})

		convey.Convey("When the event filter does not compile", func() {
			cfg.EventFilter = "event.round >"
			err := run(ctx, cfg, lg)

			convey.Convey("Then nothing runs", func() {
				convey.So(errors.Is(err, ingest.ErrInvalidFilter), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a stage fails", func() {
			cfg.EnsembleWeights = []float64{0.6, 0.3}
			err := run(ctx, cfg, lg)

			convey.Convey("Then the failure names the stage", func() {
				convey.So(errors.Is(err, errPipelineFailed), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "ensemble")
			})
		})
	})
}

func TestNewServer(t *testing.T) {
	convey.Convey("Given a controller that has not run", t, func() {
		cfg := syntheticConfig(t)
		src, _, err := newProvider(cfg, logger.Nop())
		convey.So(err, convey.ShouldBeNil)
		ctrl, err := newController(cfg, src, logger.Nop())
		convey.So(err, convey.ShouldBeNil)

		srv := newServer(context.Background(), ":0", ctrl)

		convey.Convey("Then the status route reports idle", func() {
			convey.So(srv.Addr, convey.ShouldEqual, ":0")
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Body.String(), convey.ShouldContainSubstring, `"state":"idle"`)
		})

		convey.Convey("Then rankings are not ready", func() {
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rankings", nil))
			convey.So(w.Code, convey.ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}
