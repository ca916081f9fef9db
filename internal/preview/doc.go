// Package preview produces display previews of tilt-series frames.
//
// A request names a series, a frame, a binning factor, and a quality. The
// Pipeline answers from an in-process LRU, then from a disk cache, and only
// then generates the preview from the raw image. Concurrent requests for the
// same preview share one generation; cold-path generation is bounded by a
// worker semaphore so CPU-heavy work never piles up on the request path.
package preview
