// Package api serves the materialized staking state over HTTP.
// @title Staking Index API
// @version 1.0
// @description Read API over pools, users, referrals and protocol counters materialized from staking contract events
// @license.name MIT
// @host localhost:8080
// @basePath /api/v1
// @schemes http https
package api
