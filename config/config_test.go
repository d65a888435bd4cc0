package config_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/failover-proxy/config"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

func validConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{Address: ":8080", Environment: config.EnvDev},
		Logging: config.LoggingConfig{Level: config.LogLevelInfo},
		Pools: map[string]config.PoolConfig{
			"blue":  {URL: "http://127.0.0.1:9001"},
			"green": {URL: "http://127.0.0.1:9002"},
		},
		InitialPrimary: "blue",
		Failover: config.FailoverConfig{
			FailureThreshold:     2,
			Cooldown:             "3s",
			ConnectTimeout:       "1s",
			ReadTimeout:          "2s",
			RetryBudget:          "8s",
			MaxBufferedBodyBytes: 1 << 20,
		},
	}
}

var _ = Describe("Config", func() {
	var tempDir string
	var origDir string

	BeforeEach(func() {
		// Load works on viper's package-level state; clear it so contexts
		// don't inherit values read by an earlier one.
		viper.Reset()

		var err error
		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		tempDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.Chdir(origDir)
		os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("with valid config file", func() {
			BeforeEach(func() {
				configContent := `
server:
  address: ":8080"
  environment: "dev"

logging:
  level: "info"

pools:
  blue:
    url: "http://127.0.0.1:9001"
  green:
    url: "http://127.0.0.1:9002"

initial_primary: "green"

failover:
  failure_threshold: 3
  cooldown: "5s"
  connect_timeout: "1s"
  read_timeout: "2s"
  retry_budget: "8s"
  max_buffered_body_bytes: 1048576
`
				configPath := filepath.Join(tempDir, "config.yaml")
				err := os.WriteFile(configPath, []byte(configContent), 0644)
				Expect(err).NotTo(HaveOccurred())

				err = os.Chdir(tempDir)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should load configuration successfully", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg).NotTo(BeNil())
			})

			It("should parse the pools", func() {
				cfg, _ := config.Load()
				Expect(cfg.Pools).To(HaveLen(2))
				Expect(cfg.Pools["blue"].URL).To(Equal("http://127.0.0.1:9001"))
			})

			It("should parse the initial primary", func() {
				cfg, _ := config.Load()
				Expect(cfg.InitialPrimary).To(Equal("green"))
			})

			It("should parse failover settings", func() {
				cfg, _ := config.Load()
				Expect(cfg.Failover.FailureThreshold).To(Equal(3))
				Expect(cfg.Failover.Cooldown).To(Equal("5s"))
			})
		})

		Context("without a config file", func() {
			BeforeEach(func() {
				err := os.Chdir(tempDir)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should fall back to defaults", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.InitialPrimary).To(Equal("blue"))
				Expect(cfg.Failover.FailureThreshold).To(Equal(2))
				Expect(cfg.Failover.RetryBudget).To(Equal("8s"))
				Expect(cfg.Probe.Enabled).To(BeFalse())
			})
		})
	})

	Describe("Validate", func() {
		It("should accept a valid configuration", func() {
			Expect(validConfig().Validate()).To(Succeed())
		})

		It("should reject a single pool", func() {
			cfg := validConfig()
			delete(cfg.Pools, "green")
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject three pools", func() {
			cfg := validConfig()
			cfg.Pools["red"] = config.PoolConfig{URL: "http://127.0.0.1:9003"}
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject a pool without a URL", func() {
			cfg := validConfig()
			cfg.Pools["green"] = config.PoolConfig{}
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject a pool URL without http scheme", func() {
			cfg := validConfig()
			cfg.Pools["green"] = config.PoolConfig{URL: "ftp://127.0.0.1:9002"}
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject an initial primary that names no pool", func() {
			cfg := validConfig()
			cfg.InitialPrimary = "purple"
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject a zero failure threshold", func() {
			cfg := validConfig()
			cfg.Failover.FailureThreshold = 0
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject an unparseable cooldown", func() {
			cfg := validConfig()
			cfg.Failover.Cooldown = "soon"
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject a negative retry budget", func() {
			cfg := validConfig()
			cfg.Failover.RetryBudget = "-1s"
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject an invalid listen address", func() {
			cfg := validConfig()
			cfg.Server.Address = "no-port"
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject an unknown environment", func() {
			cfg := validConfig()
			cfg.Server.Environment = "qa"
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject an unknown log level", func() {
			cfg := validConfig()
			cfg.Logging.Level = "verbose"
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		Context("probe settings", func() {
			It("should ignore probe fields when disabled", func() {
				cfg := validConfig()
				cfg.Probe = config.ProbeConfig{Enabled: false}
				Expect(cfg.Validate()).To(Succeed())
			})

			It("should require a valid interval when enabled", func() {
				cfg := validConfig()
				cfg.Probe = config.ProbeConfig{Enabled: true, Interval: "often", Path: "/healthz"}
				Expect(cfg.Validate()).NotTo(Succeed())
			})

			It("should require the path to start with a slash", func() {
				cfg := validConfig()
				cfg.Probe = config.ProbeConfig{Enabled: true, Interval: "2s", Path: "healthz"}
				Expect(cfg.Validate()).NotTo(Succeed())
			})

			It("should accept a valid probe configuration", func() {
				cfg := validConfig()
				cfg.Probe = config.ProbeConfig{Enabled: true, Interval: "2s", Path: "/healthz"}
				Expect(cfg.Validate()).To(Succeed())
			})
		})
	})
})
