package store

import (
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/sirupsen/logrus"
)

// Client wraps Cluster/Bucket/Collection handles plus config+logger.
type Client struct {
	cluster    *gocb.Cluster
	bucket     *gocb.Bucket
	collection *gocb.Collection
	config     Config
	logger     *logrus.Logger
}

// Config holds connection and keyspace details for the entity store.
type Config struct {
	ConnectionString string        `json:"connection_string"`
	Username         string        `json:"username"`
	Password         string        `json:"password"`
	BucketName       string        `json:"bucket_name"`
	ScopeName        string        `json:"scope_name"`
	CollectionName   string        `json:"collection_name"`
	ConnectTimeout   time.Duration `json:"connect_timeout"`
	OperationTimeout time.Duration `json:"operation_timeout"`
}

// NewClient connects to Couchbase, opens the bucket/scope/collection, and
// waits for readiness.
func NewClient(config Config, logger *logrus.Logger) (*Client, error) {
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.OperationTimeout == 0 {
		config.OperationTimeout = 5 * time.Second
	}
	if config.ScopeName == "" {
		config.ScopeName = "_default"
	}
	if config.CollectionName == "" {
		config.CollectionName = "_default"
	}

	opts := gocb.ClusterOptions{
		Authenticator: gocb.PasswordAuthenticator{
			Username: config.Username,
			Password: config.Password,
		},
		TimeoutsConfig: gocb.TimeoutsConfig{
			ConnectTimeout: config.ConnectTimeout,
			KVTimeout:      config.OperationTimeout,
		},
	}

	cluster, err := gocb.Connect(config.ConnectionString, opts)
	if err != nil {
		return nil, fmt.Errorf("connect cluster: %w", err)
	}

	if err := cluster.WaitUntilReady(config.ConnectTimeout, nil); err != nil {
		_ = cluster.Close(nil)
		return nil, fmt.Errorf("cluster not ready: %w", err)
	}

	bucket := cluster.Bucket(config.BucketName)
	if err := bucket.WaitUntilReady(config.ConnectTimeout, nil); err != nil {
		_ = cluster.Close(nil)
		return nil, fmt.Errorf("bucket not ready: %w", err)
	}

	collection := bucket.Scope(config.ScopeName).Collection(config.CollectionName)

	c := &Client{
		cluster:    cluster,
		bucket:     bucket,
		collection: collection,
		config:     config,
		logger:     logger,
	}

	logger.WithFields(logrus.Fields{
		"bucket":     config.BucketName,
		"scope":      config.ScopeName,
		"collection": config.CollectionName,
	}).Info("connected to entity store")

	return c, nil
}

// Close shuts down the cluster connection.
func (c *Client) Close() error {
	if c.cluster != nil {
		return c.cluster.Close(nil)
	}
	return nil
}

// Ping performs a health check against the cluster (KV service).
func (c *Client) Ping() error {
	_, err := c.cluster.Ping(&gocb.PingOptions{
		ServiceTypes: []gocb.ServiceType{gocb.ServiceTypeKeyValue},
	})
	return err
}

// CreateIndexes creates the secondary indexes the repository queries need.
// The groupID index is what makes group-membership discovery possible: both
// the group record and its member reports carry a groupID field.
func (c *Client) CreateIndexes() error {
	mgr := c.cluster.QueryIndexes()

	type idx struct {
		name   string
		fields []string
	}
	indexes := []idx{
		{"idx_entity_group", []string{"groupID"}},
		{"idx_entity_user", []string{"userID"}},
		{"idx_entity_status", []string{"status"}},
		{"idx_entity_building", []string{"building"}},
	}

	for _, ix := range indexes {
		err := mgr.CreateIndex(
			c.config.BucketName,
			ix.name,
			ix.fields,
			&gocb.CreateQueryIndexOptions{
				IgnoreIfExists: true,
				ScopeName:      c.config.ScopeName,
				CollectionName: c.config.CollectionName,
			},
		)
		if err != nil {
			c.logger.WithError(err).WithField("index", ix.name).
				Warn("failed to create index")
		} else {
			c.logger.WithField("index", ix.name).
				Info("index created (or already exists)")
		}
	}
	return nil
}
