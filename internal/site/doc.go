// Package site holds site-wide records the counter bridge consults at
// runtime: the tenant that owns recorded samples and persisted settings
// such as the counter feature flag.
package site
