// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2023 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

// Package config loads client settings from JSON or YAML data.
package config

import (
	"encoding/json"
	"os"

	rv8 "github.com/go-redis/redis/v8"
	"gopkg.in/yaml.v3"

	mqtt "github.com/mochi-mqtt/client"
	"github.com/mochi-mqtt/client/hooks/debug"
	"github.com/mochi-mqtt/client/storage"
	"github.com/mochi-mqtt/client/storage/badger"
	"github.com/mochi-mqtt/client/storage/bolt"
	"github.com/mochi-mqtt/client/storage/pebble"
	"github.com/mochi-mqtt/client/storage/redis"
)

// Config defines the structure of configuration data to be parsed from a config source.
type Config struct {
	Server        string              `yaml:"server" json:"server"`
	ClientID      string              `yaml:"client_id" json:"client_id"`
	Options       mqtt.Options        `yaml:"options" json:"options"`
	Connect       mqtt.ConnectOptions `yaml:"connect" json:"connect"`
	Subscriptions []Subscription      `yaml:"subscriptions" json:"subscriptions"`
	Storage       *StorageConfig      `yaml:"storage" json:"storage"`
	Debug         *debug.Options      `yaml:"debug" json:"debug"`
}

// Subscription is a topic filter to subscribe to once connected.
type Subscription struct {
	Filter string `yaml:"filter" json:"filter"`
	Qos    byte   `yaml:"qos" json:"qos"`
}

// StorageConfig selects the durable store for in-flight messages. At most one
// store should be configured; the in-memory store is used if none are.
type StorageConfig struct {
	Badger *badger.Options `yaml:"badger" json:"badger"`
	Bolt   *bolt.Options   `yaml:"bolt" json:"bolt"`
	Pebble *pebble.Options `yaml:"pebble" json:"pebble"`
	Redis  *RedisConfig    `yaml:"redis" json:"redis"`
}

// RedisConfig contains the connection settings of the redis store.
type RedisConfig struct {
	HPrefix  string `yaml:"h_prefix" json:"h_prefix"`
	Address  string `yaml:"address" json:"address"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	Database int    `yaml:"database" json:"database"`
}

// ToStore returns the configured store and the config to initialise it with.
func (sc *StorageConfig) ToStore() (storage.Store, any) {
	switch {
	case sc == nil:
		return storage.NewMemory(), nil
	case sc.Badger != nil:
		return new(badger.Store), sc.Badger
	case sc.Bolt != nil:
		return new(bolt.Store), sc.Bolt
	case sc.Pebble != nil:
		return new(pebble.Store), sc.Pebble
	case sc.Redis != nil:
		return new(redis.Store), &redis.Options{
			HPrefix: sc.Redis.HPrefix,
			Options: &rv8.Options{
				Addr:     sc.Redis.Address,
				Username: sc.Redis.Username,
				Password: sc.Redis.Password,
				DB:       sc.Redis.Database,
			},
		}
	default:
		return storage.NewMemory(), nil
	}
}

// FromBytes unmarshals a byte slice of JSON or YAML config data into a valid client configuration.
// The connect options start from their defaults, so only changed values need be given.
func FromBytes(b []byte) (*Config, error) {
	if len(b) == 0 {
		return nil, nil
	}

	c := &Config{
		Connect: *mqtt.NewConnectOptions(),
	}

	if b[0] == '{' {
		err := json.Unmarshal(b, c)
		if err != nil {
			return nil, err
		}
	} else {
		err := yaml.Unmarshal(b, c)
		if err != nil {
			return nil, err
		}
	}

	c.Options.Store, c.Options.StoreConfig = c.Storage.ToStore()

	return c, nil
}

// FromFile reads and unmarshals a config file. An empty path returns nil.
func FromFile(p string) (*Config, error) {
	if p == "" {
		return nil, nil
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}

	return FromBytes(data)
}
