// Package viz renders trajectories in the terminal: asciigraph line
// plots for state, quadrature and adjoint histories, a braille canvas
// for phase portraits and lipgloss styling for the surrounding panels.
package viz
