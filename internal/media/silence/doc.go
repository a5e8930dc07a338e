// Package silence locates silent stretches in audio files using the
// ffmpeg silencedetect filter. The chunk planner uses the midpoints of
// detected silences as candidate cut points.
package silence
