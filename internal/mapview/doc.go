// Package mapview tracks the map views opened by clients and keeps each
// view's marker set in step with the listings.
//
// A view is attached when a map widget mounts and detached when it unmounts
// or goes idle. Syncing a view computes an explicit diff (added, removed,
// updated markers) instead of rebuilding the whole layer, and the viewport is
// the padded bounding box of the markers or a fallback center and zoom.
package mapview
