package engine

import "fmt"

// convertFilter builds the palette-based GIF filter graph. The input is
// resampled to the requested frame rate, scaled to the requested width with
// the height following the aspect ratio, then split so a palette generated
// from the full clip is applied back onto it.
func convertFilter(frameRate, width int) string {
	return fmt.Sprintf(
		"fps=%d,scale=%d:-1:flags=lanczos,split[a][b];[b]palettegen[p];[a][p]paletteuse",
		frameRate, width,
	)
}

// buildConvertArgs constructs the argument list for the conversion command.
// This is the only command line the application ever submits to the engine.
func buildConvertArgs(spec ConvertSpec) []string {
	return []string{
		"-hide_banner", // No build banner in the log stream
		"-nostdin",     // Never wait on an interactive prompt
		"-y",           // Overwrite the output file without asking
		"-loglevel", "error", // Keep stderr to actual problems
		"-progress", "pipe:1", // Progress key=value stream on stdout
		"-i", spec.InputPath, // Input file
		"-vf", convertFilter(spec.FrameRate, spec.Width), // Filter graph
		"-loop", "0", // Loop the GIF forever
		spec.OutputPath, // Output file
	}
}
