package main

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPort is the registered Mumble control-channel port.
const DefaultPort = 64738

// FileConfig is the YAML configuration file layout.
//
//	server:
//	  host: voice.example.org
//	  port: 64738
//	  verify: false
//	  instance: "Team Server"   # resolve with mDNS instead of host
//	user:
//	  name: alice
//	  password: secret
//	  certificate: alice.pem
//	  key: alice.key
//	protocol_log: client.mlog
//	log_level: info
//	retry: 3
//	ping_interval: 5s
type FileConfig struct {
	Server       ServerSection `yaml:"server"`
	User         UserSection   `yaml:"user"`
	ProtocolLog  string        `yaml:"protocol_log"`
	LogLevel     string        `yaml:"log_level"`
	Retry        int           `yaml:"retry"`
	PingInterval time.Duration `yaml:"ping_interval"`
}

// ServerSection selects the server.
type ServerSection struct {
	Host     string `yaml:"host"`
	Port     uint16 `yaml:"port"`
	Verify   bool   `yaml:"verify"`
	Instance string `yaml:"instance"`
}

// UserSection holds the credentials and optional client certificate.
type UserSection struct {
	Name        string `yaml:"name"`
	Password    string `yaml:"password"`
	Certificate string `yaml:"certificate"`
	Key         string `yaml:"key"`
}

// LoadFileConfig reads a YAML configuration file.
func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &fc, nil
}

// Merge fills the fields of c that were not given on the command line from
// the file. set holds the names of flags given explicitly.
func (c *Config) Merge(fc *FileConfig, set map[string]bool) {
	str := func(flagName string, dst *string, v string) {
		if !set[flagName] && v != "" {
			*dst = v
		}
	}

	str("host", &c.Host, fc.Server.Host)
	str("discover-instance", &c.DiscoverInstance, fc.Server.Instance)
	str("user", &c.Username, fc.User.Name)
	str("password", &c.Password, fc.User.Password)
	str("cert", &c.CertFile, fc.User.Certificate)
	str("key", &c.KeyFile, fc.User.Key)
	str("protocol-log", &c.ProtocolLog, fc.ProtocolLog)
	str("log-level", &c.LogLevel, fc.LogLevel)

	if !set["port"] && fc.Server.Port != 0 {
		c.Port = uint(fc.Server.Port)
	}
	if !set["verify"] && fc.Server.Verify {
		c.VerifyPeer = true
	}
	if !set["retry"] && fc.Retry != 0 {
		c.Retry = fc.Retry
	}
	if !set["ping-interval"] && fc.PingInterval != 0 {
		c.PingInterval = fc.PingInterval
	}
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	if c.Host == "" && !c.Discover && c.DiscoverInstance == "" {
		return errors.New("a server is required: use -host, -discover or -discover-instance")
	}
	if c.Port == 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Username == "" {
		return errors.New("a username is required: use -user")
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.New("-cert and -key must be given together")
	}
	if c.Retry < 0 {
		return fmt.Errorf("invalid retry count: %d", c.Retry)
	}
	return nil
}

// LoadCertificate loads the client certificate, if configured.
func (c *Config) LoadCertificate() (*tls.Certificate, error) {
	if c.CertFile == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client certificate: %w", err)
	}
	return &cert, nil
}
