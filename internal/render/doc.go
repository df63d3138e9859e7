// Package render draws caption lines onto extracted video frames.
//
// A Font is parsed once and shared; a Renderer owns a single font.Face and
// must not be used from more than one goroutine, so a worker pool creates
// one Renderer per worker. RenderCaption rewrites a frame in place through a
// temp file and rename, so a frame on disk is always either the original or
// the fully captioned image.
package render
