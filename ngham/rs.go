package ngham

// RSCodec implements a classical Reed-Solomon code over GF(256), the shape
// NGHam needs: locate and correct byte errors at unknown positions rather
// than reconstruct shards at known-missing positions (which is what
// github.com/klauspost/reedsolomon, an erasure-coding library, is built
// for — see DESIGN.md for why that pack-present dependency doesn't fit
// here). It is built from the same (symsize, genpoly, fcr, prim, nroots)
// parameterization as Phil Karn's init_rs_char, ported to Go in the
// retrieved FX.25 implementation (doismellburning-samoyed__src-fx25_init),
// which this codec's shape is grounded on.
//
// One RSCodec instance is shared across every size bucket with the same
// nroots value; the amount of implicit zero-padding (virtual shortening)
// is passed per call, per spec §9's design note.
type RSCodec struct {
	gf      *gf256
	fcr     int
	prim    int
	iprim   int
	nroots  int
	genPoly []int
}

// NewRSCodec builds an RS(nn, nn-nroots) codec over GF(256) with generator
// polynomial genpoly, first consecutive root fcr, and primitive element
// prim. For the NGHam wire format genpoly=0x187, fcr=112, prim=11.
func NewRSCodec(genpoly, fcr, prim, nroots int) *RSCodec {
	gf := newGF256(genpoly)

	iprim := 1
	for (iprim*prim)%gf.nn != 1 {
		iprim++
	}

	genPoly := make([]int, nroots+1)
	genPoly[0] = 1
	root := fcr * prim
	for i := 0; i < nroots; i++ {
		genPoly[i+1] = 1
		for j := i; j > 0; j-- {
			if genPoly[j] != 0 {
				genPoly[j] = genPoly[j-1] ^ gf.alphaTo[gf.modNN(gf.indexOf[genPoly[j]]+root)]
			} else {
				genPoly[j] = genPoly[j-1]
			}
		}
		genPoly[0] = gf.alphaTo[gf.modNN(gf.indexOf[genPoly[0]]+root)]
		root += prim
	}
	// Convert to index form for the encoder's inner loop.
	for i := range genPoly {
		genPoly[i] = gf.indexOf[genPoly[i]]
	}

	return &RSCodec{
		gf:      gf,
		fcr:     fcr,
		prim:    prim,
		iprim:   iprim,
		nroots:  nroots,
		genPoly: genPoly,
	}
}

// NRoots returns the number of parity symbols this codec produces.
func (r *RSCodec) NRoots() int { return r.nroots }

// Encode computes the nroots parity bytes for data. pad is the number of
// implicit leading zero bytes that would complete the shortened codeword
// to the full RS(255,255-nroots) length; it is accepted for symmetry with
// Decode but unused here, since XOR-ing in leading zero symbols never
// changes the LFSR's state.
func (r *RSCodec) Encode(data []byte, pad int) []byte {
	parity := make([]int, r.nroots)

	for _, b := range data {
		feedback := r.gf.indexOf[int(b)^parity[0]]
		if feedback != gfA0 {
			for j := 1; j < r.nroots; j++ {
				parity[j-1] = parity[j] ^ r.gf.alphaTo[r.gf.modNN(feedback+r.genPoly[r.nroots-j])]
			}
			parity[r.nroots-1] = r.gf.alphaTo[r.gf.modNN(feedback+r.genPoly[0])]
		} else {
			copy(parity, parity[1:])
			parity[r.nroots-1] = 0
		}
	}

	out := make([]byte, r.nroots)
	for i, v := range parity {
		out[i] = byte(v)
	}
	return out
}

// Decode corrects data+parity in place (data and parity together form the
// transmitted part of the shortened codeword; pad implicit leading zero
// bytes complete it to length 255). It returns the number of corrected
// symbols and false if the block is uncorrectable (more errors than
// nroots/2).
func (r *RSCodec) Decode(data []byte, parity []byte, pad int) (numErr int, ok bool) {
	nn := r.gf.nn
	nroots := r.nroots
	total := pad + len(data) + len(parity)
	if total != nn {
		return 0, false
	}

	// Reconstruct the codeword in index-of-power form, highest order first,
	// matching Karn's convention where recd[0] is the coefficient of x^(nn-1).
	recd := make([]int, nn)
	for i := 0; i < pad; i++ {
		recd[i] = 0
	}
	for i, b := range data {
		recd[pad+i] = int(b)
	}
	for i, b := range parity {
		recd[pad+len(data)+i] = int(b)
	}

	// Syndromes.
	syn := make([]int, nroots)
	hasError := false
	for i := 0; i < nroots; i++ {
		var sum int
		root := (r.fcr + i) * r.prim
		for j := 0; j < nn; j++ {
			if recd[j] == 0 {
				continue
			}
			sum ^= r.gf.alphaTo[r.gf.modNN(r.gf.indexOf[recd[j]]+root*(nn-1-j))]
		}
		syn[i] = sum
		if sum != 0 {
			hasError = true
		}
	}
	if !hasError {
		return 0, true
	}

	// Berlekamp-Massey.
	lambda := make([]int, nroots+1)
	b := make([]int, nroots+1)
	lambda[0] = 1
	b[0] = 1
	l := 0
	m := 1
	dd := 1

	synIdx := make([]int, nroots)
	for i, s := range syn {
		synIdx[i] = r.gf.indexOf[s]
	}

	for n := 0; n < nroots; n++ {
		delta := syn[n]
		for i := 1; i <= l; i++ {
			if lambda[i] != 0 && synIdx[n-i] != gfA0 {
				delta ^= r.gf.alphaTo[r.gf.modNN(r.gf.indexOf[lambda[i]]+synIdx[n-i])]
			}
		}
		deltaIdx := r.gf.indexOf[delta]
		if delta == 0 {
			m++
		} else if 2*l <= n {
			t := make([]int, nroots+1)
			copy(t, lambda)
			for i := 0; i <= nroots; i++ {
				if i-m >= 0 && b[i-m] != 0 {
					lambda[i] ^= r.gf.alphaTo[r.gf.modNN(deltaIdx+r.gf.indexOf[b[i-m]]+nn-r.gf.indexOf[dd])]
				}
			}
			l = n + 1 - l
			copy(b, t)
			dd = delta
			m = 1
		} else {
			for i := 0; i <= nroots; i++ {
				if i-m >= 0 && b[i-m] != 0 {
					lambda[i] ^= r.gf.alphaTo[r.gf.modNN(deltaIdx+r.gf.indexOf[b[i-m]]+nn-r.gf.indexOf[dd])]
				}
			}
			m++
		}
	}

	if l > nroots/2 {
		return 0, false
	}

	// Chien search: find roots of lambda, i.e. error locations.
	lambdaIdx := make([]int, l+1)
	for i := 0; i <= l; i++ {
		lambdaIdx[i] = r.gf.indexOf[lambda[i]]
	}

	var errPos, errRoot []int
	for i := 0; i < nn; i++ {
		var q int
		for j := 0; j <= l; j++ {
			if lambdaIdx[j] != gfA0 {
				q ^= r.gf.alphaTo[r.gf.modNN(lambdaIdx[j]+j*i)]
			}
		}
		if q == 0 {
			// Root alpha^i is X^-1 with X = alpha^(prim*p) for an error at
			// power p, so p = -i*iprim, stored at array index nn-1-p.
			p := r.gf.modNN((nn - i) * r.iprim)
			errPos = append(errPos, nn-1-p)
			errRoot = append(errRoot, i)
		}
	}
	if len(errPos) != l {
		return 0, false // uncorrectable: couldn't find all roots
	}

	// Forney algorithm: compute error magnitudes.
	omega := make([]int, nroots)
	for i := 0; i < nroots; i++ {
		var sum int
		for j := 0; j <= i && j <= l; j++ {
			if lambda[j] != 0 && syn[i-j] != 0 {
				sum ^= r.gf.alphaTo[r.gf.modNN(r.gf.indexOf[lambda[j]]+r.gf.indexOf[syn[i-j]])]
			}
		}
		omega[i] = sum
	}

	corrected := 0
	for k, pos := range errPos {
		// pos is the array index (0 = highest order term) within the full
		// length-nn codeword; positions inside the pad region indicate a
		// corruption we were never meant to see and are not fixable here.
		if pos < pad {
			return 0, false
		}

		xInv := errRoot[k]
		var numSum, denSum int
		for j := 0; j < nroots; j++ {
			if omega[j] != 0 {
				numSum ^= r.gf.alphaTo[r.gf.modNN(r.gf.indexOf[omega[j]]+j*xInv)]
			}
		}
		for j := 0; j < l; j += 2 {
			if lambda[j+1] != 0 {
				denSum ^= r.gf.alphaTo[r.gf.modNN(r.gf.indexOf[lambda[j+1]]+j*xInv)]
			}
		}
		if denSum == 0 || numSum == 0 {
			return 0, false
		}
		magnitude := r.gf.alphaTo[r.gf.modNN(r.gf.indexOf[numSum]+xInv*(r.fcr-1)+nn-r.gf.indexOf[denSum])]
		recd[pos] ^= magnitude
		corrected++
	}

	for i, v := range recd[pad : pad+len(data)] {
		data[i] = byte(v)
	}
	for i, v := range recd[pad+len(data):] {
		parity[i] = byte(v)
	}

	return corrected, true
}
