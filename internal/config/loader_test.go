package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/pitwall/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.FeatureStorePath, convey.ShouldEqual, "data/features")
				convey.So(cfg.FeatureSetName, convey.ShouldEqual, "race_features")
				convey.So(cfg.EventFilter, convey.ShouldEqual, `event.format == "conventional"`)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("PITWALL_ADDR", ":8080")
			_ = os.Setenv("PITWALL_TEST_SIZE", "0.25")
			_ = os.Setenv("PITWALL_YEARS", "2022, 2023,2024")
			_ = os.Setenv("PITWALL_ENSEMBLE_WEIGHTS", "0.7,0.3")
			_ = os.Setenv("PITWALL_PROVIDER_KIND", "synthetic")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.TestSize, convey.ShouldEqual, 0.25)
				convey.So(cfg.Years, convey.ShouldResemble, []int{2022, 2023, 2024})
				convey.So(cfg.EnsembleWeights, convey.ShouldResemble, []float64{0.7, 0.3})
				convey.So(cfg.ProviderKind, convey.ShouldEqual, config.ProviderSynthetic)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
years: [2023, 2024]
feature_set_name: nightly
elo_k_factor: 24
`
			tmpFile := createTempConfigFile(t, yamlContent)
			_ = os.Setenv("PITWALL_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.Years, convey.ShouldResemble, []int{2023, 2024})
				convey.So(cfg.FeatureSetName, convey.ShouldEqual, "nightly")
				convey.So(cfg.EloKFactor, convey.ShouldEqual, 24)
				convey.So(cfg.TestSize, convey.ShouldEqual, 0.2)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(t, "addr: \":9090\"\nelo_k_factor: 24\n")
			_ = os.Setenv("PITWALL_CONFIG", tmpFile)
			_ = os.Setenv("PITWALL_ELO_K_FACTOR", "40")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.EloKFactor, convey.ShouldEqual, 40)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(t, `invalid: yaml: content: [`)
			_ = os.Setenv("PITWALL_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("PITWALL_CONFIG", "/non/existent/pitwall.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)
			convey.So(cfg, convey.ShouldBeNil)
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestConfigValidation(t *testing.T) {
	convey.Convey("Given invalid settings", t, func() {
		ctx := context.Background()
		defer clearConfigEnvVars()

		cases := map[string]string{
			"PITWALL_TEST_SIZE":        "1.5",
			"PITWALL_LOG_LEVEL":        "chatty",
			"PITWALL_MAX_YEAR":         "2000",
			"PITWALL_ENSEMBLE_WEIGHTS": "1",
			"PITWALL_PROVIDER_KIND":    "fastf1",
			"PITWALL_FEATURE_SET_NAME": "a/b",
		}
		for key, value := range cases {
			convey.Convey("When "+key+"="+value, func() {
				clearConfigEnvVars()
				_ = os.Setenv(key, value)

				cfg, err := config.Load(ctx)

				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}

		convey.Convey("When the ergast provider has no base URL", func() {
			clearConfigEnvVars()
			cfg := config.New()
			cfg.ProviderBaseURL = ""
			convey.So(errors.Is(config.Validate(cfg), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

func clearConfigEnvVars() {
	for _, key := range []string{
		"PITWALL_CONFIG",
		"PITWALL_ADDR",
		"PITWALL_TEST_SIZE",
		"PITWALL_YEARS",
		"PITWALL_ENSEMBLE_WEIGHTS",
		"PITWALL_PROVIDER_KIND",
		"PITWALL_ELO_K_FACTOR",
		"PITWALL_LOG_LEVEL",
		"PITWALL_MAX_YEAR",
		"PITWALL_FEATURE_SET_NAME",
	} {
		_ = os.Unsetenv(key)
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "pitwall-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()
	return f.Name()
}
