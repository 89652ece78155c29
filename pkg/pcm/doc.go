// ABOUTME: PCM loading package documentation
// ABOUTME: File decoding and Opus packet coding for the external PCM waveform
// Package pcm turns audio files into mono loop tables at the audio server's
// sample rate, and codes mono Opus packets for compressed frame pushes.
//
// Supported files: .wav, .aiff, .mp3, .flac and .ogg (Vorbis).
package pcm
