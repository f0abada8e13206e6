// Package cache defines the named response stores that back the offline
// proxy. A Registry owns every store, keyed by a version-qualified name such as
// "palace-static-v1.2"; each Store maps a normalized request Identity to an
// immutable Payload snapshot. Three registry drivers exist (memory, disk and
// sqlite) and all of them treat writes as whole-value overwrites so concurrent
// writers can only clobber one another, never corrupt an entry.
package cache
