package spiflash

// completeIO repeats a partial read or write until the whole buffer has been
// handled or an error occurs.
func completeIO(addr uint32, buf []byte, f func(addr uint32, buf []byte) (int, error)) (int, error) {
	index := 0

	for len(buf) > 0 {
		n, err := f(addr, buf)
		index += n
		addr += uint32(n)

		if err != nil {
			return index, err
		}

		buf = buf[n:]
	}

	return index, nil
}

// PageRoom returns how many bytes can be programmed at addr before the next
// 256-byte page boundary.
func PageRoom(addr uint32) uint32 {
	return PageSize - addr&(PageSize-1)
}
