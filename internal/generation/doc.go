// Package generation owns the store registry across deployments.
//
// A Manager maps the service-worker lifecycle onto the process: Install opens
// the current STATIC store and seeds it from the bootstrap manifest as one
// all-or-nothing unit; Activate deletes every store that does not belong to the
// running generation and then claims traffic. Until Ready reports true the HTTP
// surface refuses to intercept requests.
package generation
