package integrator

import (
	"github.com/san-kum/daesim/internal/oracle"
)

// jacAssembler builds the dense Newton iteration matrix from the
// oracle's Jacobian blocks. For the forward problem the matrix is
//
//	[ d ode/dx - cj*I   d ode/dz ]
//	[ d alg/dx          d alg/dz ]
//
// and the backward matrix is the same shape over the adjoint residual
// with +cj on the differential diagonal.
type jacAssembler struct {
	name    string
	in      []oracle.Role
	n, nDif int     // matrix size and differential block size
	cjSign  float64 // -1 forward, +1 backward

	blocks []jacPart
}

type jacPart struct {
	fn         oracle.Func
	row, col   int // offsets into the assembled matrix
	nRow, nCol int
	buf        []float64
	argIdx     []int // assembler arg slot for each block input
}

func (a *jacAssembler) Name() string       { return a.name }
func (a *jacAssembler) In() []oracle.Role  { return a.in }
func (a *jacAssembler) Out() []oracle.Role { return []oracle.Role{"jac"} }

// Call fills res[0] (n*n row-major) from the blocks and applies the
// cj shift. arg follows In(): the last slot is cj.
func (a *jacAssembler) Call(arg, res [][]float64) error {
	jac := res[0]
	clear(jac)
	var bArg [8][]float64
	var bRes [1][]float64
	for i := range a.blocks {
		b := &a.blocks[i]
		args := bArg[:len(b.argIdx)]
		for k, idx := range b.argIdx {
			args[k] = arg[idx]
		}
		bRes[0] = b.buf
		if err := b.fn.Call(args, bRes[:]); err != nil {
			return err
		}
		for r := 0; r < b.nRow; r++ {
			copy(jac[(b.row+r)*a.n+b.col:(b.row+r)*a.n+b.col+b.nCol], b.buf[r*b.nCol:(r+1)*b.nCol])
		}
	}
	cj := arg[len(arg)-1][0]
	for i := 0; i < a.nDif; i++ {
		jac[i*a.n+i] += a.cjSign * cj
	}
	return nil
}

// assembleJacF builds the forward iteration matrix function jacF with
// inputs (t, x, z, p, cj).
func (s *Solver) assembleJacF(prov oracle.Provider) (oracle.Func, error) {
	d := s.dims
	in := []oracle.Role{oracle.T, oracle.X, oracle.Z, oracle.P, oracle.CJ}
	base := []oracle.Role{oracle.X, oracle.Z, oracle.P, oracle.T}
	// slot of each base input within `in`
	baseIdx := []int{1, 2, 3, 0}
	a := &jacAssembler{
		name:   "jacF",
		in:     in,
		n:      d.Nx + d.Nz,
		nDif:   d.Nx,
		cjSign: -1,
	}
	type want struct {
		of, wrt    oracle.Role
		row, col   int
		nRow, nCol int
	}
	wants := []want{
		{oracle.ODE, oracle.X, 0, 0, d.Nx, d.Nx},
		{oracle.ODE, oracle.Z, 0, d.Nx, d.Nx, d.Nz},
		{oracle.ALG, oracle.X, d.Nx, 0, d.Nz, d.Nx},
		{oracle.ALG, oracle.Z, d.Nx, d.Nx, d.Nz, d.Nz},
	}
	for _, w := range wants {
		if w.nRow == 0 || w.nCol == 0 {
			continue
		}
		block := oracle.JacBlock(w.of, w.wrt)
		fn, err := prov.Create("jacF:"+string(block), base, []oracle.Role{block})
		if err != nil {
			return nil, configErrf("creating %s block %s: %v", a.name, block, err)
		}
		a.blocks = append(a.blocks, jacPart{
			fn: fn, row: w.row, col: w.col, nRow: w.nRow, nCol: w.nCol,
			buf:    make([]float64, w.nRow*w.nCol),
			argIdx: baseIdx,
		})
	}
	return a, nil
}

// assembleJacB builds the backward iteration matrix function jacB with
// inputs (t, rx, rz, rp, x, z, p, cj).
func (s *Solver) assembleJacB(prov oracle.Provider) (oracle.Func, error) {
	d := s.dims
	in := []oracle.Role{oracle.T, oracle.RX, oracle.RZ, oracle.RP,
		oracle.X, oracle.Z, oracle.P, oracle.CJ}
	base := []oracle.Role{oracle.RX, oracle.RZ, oracle.RP,
		oracle.X, oracle.Z, oracle.P, oracle.T}
	baseIdx := []int{1, 2, 3, 4, 5, 6, 0}
	a := &jacAssembler{
		name:   "jacB",
		in:     in,
		n:      d.Nrx + d.Nrz,
		nDif:   d.Nrx,
		cjSign: +1,
	}
	type want struct {
		of, wrt    oracle.Role
		row, col   int
		nRow, nCol int
	}
	wants := []want{
		{oracle.RODE, oracle.RX, 0, 0, d.Nrx, d.Nrx},
		{oracle.RODE, oracle.RZ, 0, d.Nrx, d.Nrx, d.Nrz},
		{oracle.RALG, oracle.RX, d.Nrx, 0, d.Nrz, d.Nrx},
		{oracle.RALG, oracle.RZ, d.Nrx, d.Nrx, d.Nrz, d.Nrz},
	}
	for _, w := range wants {
		if w.nRow == 0 || w.nCol == 0 {
			continue
		}
		block := oracle.JacBlock(w.of, w.wrt)
		fn, err := prov.Create("jacB:"+string(block), base, []oracle.Role{block})
		if err != nil {
			return nil, configErrf("creating %s block %s: %v", a.name, block, err)
		}
		a.blocks = append(a.blocks, jacPart{
			fn: fn, row: w.row, col: w.col, nRow: w.nRow, nCol: w.nCol,
			buf:    make([]float64, w.nRow*w.nCol),
			argIdx: baseIdx,
		})
	}
	return a, nil
}
