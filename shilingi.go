/*
Copyright 2025 Shilingi Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package shilingi

import (
	"embed"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/shilingihq/shilingi/config"
	"github.com/shilingihq/shilingi/database"
	"github.com/shilingihq/shilingi/internal/cache"
	redis_db "github.com/shilingihq/shilingi/internal/redis-db"
)

// Shilingi is the reconciliation service. It owns the datasource, the redis
// client backing the per-transaction locks, and the suggestion cache.
type Shilingi struct {
	redis       redis.UniversalClient
	cache       cache.Cache
	datasource  database.IDataSource
	matchParams MatchParams
}

//go:embed sql/*.sql
var SQLFiles embed.FS

// NewShilingi initializes a new instance of Shilingi with the provided
// datasource. It fetches the configuration and wires the redis client,
// cache, and matcher parameters.
func NewShilingi(db database.IDataSource) (*Shilingi, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)})
	if err != nil {
		return nil, err
	}
	newCache, err := cache.NewCache()
	if err != nil {
		return nil, err
	}
	newShilingi := &Shilingi{
		datasource:  db,
		redis:       redisClient.Client(),
		cache:       newCache,
		matchParams: MatchParamsFromConfig(configuration.Matcher),
	}
	return newShilingi, nil
}

// NewShilingiWithDeps wires a service from explicit dependencies. A nil
// redis client disables the per-transaction locks and a nil cache disables
// suggestion caching; both are acceptable for single-process use and tests.
func NewShilingiWithDeps(db database.IDataSource, redisClient redis.UniversalClient, c cache.Cache, params MatchParams) *Shilingi {
	return &Shilingi{
		datasource:  db,
		redis:       redisClient,
		cache:       c,
		matchParams: params,
	}
}
