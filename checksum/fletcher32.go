// Package checksum computes the Fletcher-32 checksum used to detect
// corruption of archive blocks and headers on disk.
package checksum

// Fletcher32 computes the Fletcher-32 checksum of data as the archive
// format defines it: two 16-bit running sums seeded at 0xffff, reduced
// modulo 0xffff every 360 bytes (a chunk small enough that neither uint32
// accumulator can overflow between reductions), with a final double
// reduction before the two halves are combined.
func Fletcher32(data []byte) uint32 {
	var sum1, sum2 uint32 = 0xffff, 0xffff
	n := len(data)
	i := 0
	for n > 0 {
		tlen := n
		if tlen > 360 {
			tlen = 360
		}
		n -= tlen
		for ; tlen > 0; tlen-- {
			sum1 += uint32(data[i])
			sum2 += sum1
			i++
		}
		sum1 = (sum1 & 0xffff) + (sum1 >> 16)
		sum2 = (sum2 & 0xffff) + (sum2 >> 16)
	}
	// Second reduction step to reduce sums to 16 bits.
	sum1 = (sum1 & 0xffff) + (sum1 >> 16)
	sum2 = (sum2 & 0xffff) + (sum2 >> 16)
	return sum2<<16 | sum1
}
