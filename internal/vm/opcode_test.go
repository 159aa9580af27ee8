package vm

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFields(t *testing.T) {
	op := opcode(0xD4A7)

	assert.Equal(t, uint16(0x4), op.x())
	assert.Equal(t, uint16(0xA), op.y())
	assert.Equal(t, uint16(0x7), op.n())
	assert.Equal(t, uint8(0xA7), op.nn())
	assert.Equal(t, uint16(0x4A7), op.nnn())
}

func TestRegisterArithmetic(t *testing.T) {
	tests := []struct {
		name   string
		opcode uint16
		x, y   uint8
		wantX  uint8
		wantVF uint8
	}{
		{name: "mov", opcode: 0x8010, x: 1, y: 7, wantX: 7},
		{name: "or", opcode: 0x8011, x: 0x0F, y: 0xF0, wantX: 0xFF},
		{name: "and", opcode: 0x8012, x: 0x3C, y: 0x0F, wantX: 0x0C},
		{name: "xor", opcode: 0x8013, x: 0xFF, y: 0x0F, wantX: 0xF0},
		{name: "add with carry", opcode: 0x8014, x: 250, y: 10, wantX: 4, wantVF: 1},
		{name: "add without carry", opcode: 0x8014, x: 1, y: 1, wantX: 2, wantVF: 0},
		{name: "add to exactly 255", opcode: 0x8014, x: 200, y: 55, wantX: 255, wantVF: 0},
		{name: "sub with borrow", opcode: 0x8015, x: 5, y: 10, wantX: 251, wantVF: 0},
		{name: "sub without borrow", opcode: 0x8015, x: 10, y: 5, wantX: 5, wantVF: 1},
		{name: "sub equal", opcode: 0x8015, x: 7, y: 7, wantX: 0, wantVF: 0},
		{name: "shr odd", opcode: 0x8016, x: 0x05, wantX: 0x02, wantVF: 1},
		{name: "shr even", opcode: 0x8016, x: 0x04, wantX: 0x02, wantVF: 0},
		{name: "rsb without borrow", opcode: 0x8017, x: 5, y: 10, wantX: 5, wantVF: 1},
		{name: "rsb with borrow", opcode: 0x8017, x: 10, y: 5, wantX: 251, wantVF: 0},
		{name: "shl high bit", opcode: 0x801E, x: 0x81, wantX: 0x02, wantVF: 1},
		{name: "shl no high bit", opcode: 0x801E, x: 0x41, wantX: 0x82, wantVF: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t)
			vm.registers[0] = tt.x
			vm.registers[1] = tt.y

			require.NoError(t, vm.executeOpcode(context.Background(), opcode(tt.opcode)))
			assert.Equal(t, tt.wantX, vm.registers[0])
			assert.Equal(t, tt.wantVF, vm.registers[flagRegister])
		})
	}
}

func TestFlagWinsOverResultInVF(t *testing.T) {
	vm := newTestVM(t)
	vm.registers[0xF] = 250
	vm.registers[0x1] = 10

	require.NoError(t, vm.executeOpcode(context.Background(), 0x8F14))
	assert.Equal(t, uint8(1), vm.registers[0xF])
}

func TestLoadAndAddConstant(t *testing.T) {
	vm := newTestVM(t, 0x63FA, 0x730A, 0x6401, 0x7401)
	vm.registers[flagRegister] = 0x42

	stepN(t, vm, 2)
	assert.Equal(t, uint8(4), vm.registers[3], "wraps modulo 256")

	stepN(t, vm, 2)
	assert.Equal(t, uint8(2), vm.registers[4])
	assert.Equal(t, uint8(0x42), vm.registers[flagRegister], "7xnn leaves VF alone")
}

func TestSkips(t *testing.T) {
	tests := []struct {
		name   string
		opcode uint16
		x, y   uint8
		wantPC uint16
	}{
		{name: "skeq const taken", opcode: 0x3011, x: 0x11, wantPC: 0x204},
		{name: "skeq const not taken", opcode: 0x3011, x: 0x12, wantPC: 0x202},
		{name: "skne const taken", opcode: 0x4011, x: 0x12, wantPC: 0x204},
		{name: "skne const not taken", opcode: 0x4011, x: 0x11, wantPC: 0x202},
		{name: "skeq reg taken", opcode: 0x5010, x: 3, y: 3, wantPC: 0x204},
		{name: "skeq reg not taken", opcode: 0x5010, x: 3, y: 4, wantPC: 0x202},
		{name: "skne reg taken", opcode: 0x9010, x: 3, y: 4, wantPC: 0x204},
		{name: "skne reg not taken", opcode: 0x9010, x: 3, y: 3, wantPC: 0x202},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t, tt.opcode)
			vm.registers[0] = tt.x
			vm.registers[1] = tt.y

			stepN(t, vm, 1)
			assert.Equal(t, tt.wantPC, vm.PC())
		})
	}
}

func TestUnknownOpcodeIsNoOp(t *testing.T) {
	for _, word := range []uint16{0x5001, 0x9001, 0x8008, 0x0123, 0xE0FF, 0xF0FF} {
		vm := newTestVM(t, word)
		for i := range vm.registers {
			vm.registers[i] = uint8(i)
		}
		memBefore := append([]uint8(nil), vm.memory...)
		regsBefore := append([]uint8(nil), vm.registers...)

		stepN(t, vm, 1)
		assert.Equal(t, ProgramStart+2, vm.PC(), "0x%04x", word)
		assert.Equal(t, regsBefore, vm.registers, "0x%04x", word)
		assert.True(t, cmp.Equal(memBefore, vm.memory), "0x%04x", word)
	}
}

func TestJumps(t *testing.T) {
	vm := newTestVM(t, 0x1208)
	stepN(t, vm, 1)
	assert.Equal(t, uint16(0x208), vm.PC())
	assert.False(t, vm.Halted())

	vm = newTestVM(t, 0xB300)
	vm.registers[0] = 0x10
	stepN(t, vm, 1)
	assert.Equal(t, uint16(0x310), vm.PC())
}

func TestIndexOperations(t *testing.T) {
	ctx := context.Background()
	vm := newTestVM(t)

	require.NoError(t, vm.executeOpcode(ctx, 0xA123))
	assert.Equal(t, uint16(0x123), vm.index)

	vm.registers[2] = 0xFF
	require.NoError(t, vm.executeOpcode(ctx, 0xF21E))
	assert.Equal(t, uint16(0x222), vm.index)

	vm.index = 0xFFF
	vm.registers[flagRegister] = 0
	require.NoError(t, vm.executeOpcode(ctx, 0xF21E))
	assert.Equal(t, uint16(0x10FE), vm.index, "16-bit add, not masked")
	assert.Zero(t, vm.registers[flagRegister])

	vm.registers[2] = 0xA
	require.NoError(t, vm.executeOpcode(ctx, 0xF229))
	assert.Equal(t, uint16(50), vm.index)
}

func TestTimerRegisters(t *testing.T) {
	ctx := context.Background()
	vm := newTestVM(t)

	vm.registers[4] = 42
	require.NoError(t, vm.executeOpcode(ctx, 0xF415))
	require.NoError(t, vm.executeOpcode(ctx, 0xF418))
	assert.Equal(t, uint8(42), vm.delayTimer)
	assert.Equal(t, uint8(42), vm.soundTimer)

	vm.delayTimer = 17
	require.NoError(t, vm.executeOpcode(ctx, 0xF507))
	assert.Equal(t, uint8(17), vm.registers[5])
}

func TestRandomMask(t *testing.T) {
	vm, err := New(nil, 500, 0, WithRandom(func() uint8 { return 0xAB }))
	require.NoError(t, err)

	require.NoError(t, vm.executeOpcode(context.Background(), 0xC70F))
	assert.Equal(t, uint8(0x0B), vm.registers[7])
}

func TestBCD(t *testing.T) {
	tests := []struct {
		value uint8
		want  []uint8
	}{
		{value: 234, want: []uint8{2, 3, 4}},
		{value: 7, want: []uint8{0, 0, 7}},
		{value: 100, want: []uint8{1, 0, 0}},
		{value: 255, want: []uint8{2, 5, 5}},
	}

	for _, tt := range tests {
		vm := newTestVM(t)
		vm.index = 0x300
		vm.registers[6] = tt.value

		require.NoError(t, vm.executeOpcode(context.Background(), 0xF633))
		assert.Equal(t, tt.want, vm.memory[0x300:0x303])
		assert.Equal(t, uint16(0x300), vm.index)
	}
}

func TestStoreAndLoadRegisters(t *testing.T) {
	ctx := context.Background()
	vm := newTestVM(t)
	vm.index = 0x400
	for i := range vm.registers {
		vm.registers[i] = uint8(0x10 + i)
	}

	require.NoError(t, vm.executeOpcode(ctx, 0xF355))
	assert.Equal(t, []uint8{0x10, 0x11, 0x12, 0x13, 0x00}, vm.memory[0x400:0x405])
	assert.Equal(t, uint16(0x400), vm.index)

	vm.memory[0x400] = 0xAA
	vm.memory[0x401] = 0xBB
	require.NoError(t, vm.executeOpcode(ctx, 0xF165))
	assert.Equal(t, []uint8{0xAA, 0xBB, 0x12}, vm.registers[0:3])
	assert.Equal(t, uint16(0x400), vm.index)
}

func TestMemoryAccessThroughIndexWraps(t *testing.T) {
	vm := newTestVM(t)
	vm.index = 0xFFF
	vm.registers[0] = 1
	vm.registers[1] = 2

	require.NoError(t, vm.executeOpcode(context.Background(), 0xF155))
	assert.Equal(t, uint8(1), vm.memory[0xFFF])
	assert.Equal(t, uint8(2), vm.memory[0x000])
}

func glyphScreen(glyph []uint8, x, y int) []uint8 {
	gfx := make([]uint8, ScreenWidth*ScreenHeight)
	for row, bits := range glyph {
		for col := 0; col < 8; col++ {
			if bits&(0x80>>col) != 0 {
				gfx[(y+row)*ScreenWidth+x+col] = 1
			}
		}
	}
	return gfx
}

func TestDrawGlyphTwiceErases(t *testing.T) {
	vm := newTestVM(t,
		0x6000, // v0 = 0
		0x6100, // v1 = 0
		0xF029, // i = glyph 0
		0xD015, // draw
		0xD015, // draw again
	)

	stepN(t, vm, 4)
	assert.Zero(t, vm.registers[flagRegister])
	if diff := cmp.Diff(glyphScreen(chip8Font[0:5], 0, 0), vm.Screen()); diff != "" {
		t.Errorf("screen: (-want, +got)\n%s", diff)
	}

	stepN(t, vm, 1)
	assert.Equal(t, uint8(1), vm.registers[flagRegister])
	assert.Equal(t, make([]uint8, ScreenWidth*ScreenHeight), vm.Screen())
}

func TestDrawClipsAtEdges(t *testing.T) {
	ctx := context.Background()

	t.Run("right edge", func(t *testing.T) {
		vm := newTestVM(t)
		vm.index = 0x300
		vm.memory[0x300] = 0xFF
		vm.registers[0] = 62

		require.NoError(t, vm.executeOpcode(ctx, 0xD011))
		assert.Equal(t, uint8(1), vm.gfx[62])
		assert.Equal(t, uint8(1), vm.gfx[63])
		assert.Zero(t, vm.gfx[0])
		assert.Zero(t, vm.gfx[1])
		assert.Zero(t, vm.gfx[64])
	})

	t.Run("bottom edge", func(t *testing.T) {
		vm := newTestVM(t)
		vm.index = 0x300
		vm.memory[0x300] = 0x80
		vm.memory[0x301] = 0x80
		vm.registers[1] = 31

		require.NoError(t, vm.executeOpcode(ctx, 0xD012))
		assert.Equal(t, uint8(1), vm.gfx[31*ScreenWidth])
		assert.Zero(t, vm.gfx[0])
	})

	t.Run("origin wraps", func(t *testing.T) {
		vm := newTestVM(t)
		vm.index = 0x300
		vm.memory[0x300] = 0x80
		vm.registers[0] = ScreenWidth + 2
		vm.registers[1] = ScreenHeight + 3

		require.NoError(t, vm.executeOpcode(ctx, 0xD011))
		assert.Equal(t, uint8(1), vm.gfx[3*ScreenWidth+2])
		assert.True(t, vm.ShouldDraw())
	})
}

func TestDrawResetsCollisionFlag(t *testing.T) {
	vm := newTestVM(t)
	vm.index = 0x300
	vm.memory[0x300] = 0x80
	vm.registers[flagRegister] = 1
	vm.registers[0] = 10

	require.NoError(t, vm.executeOpcode(context.Background(), 0xD011))
	assert.Zero(t, vm.registers[flagRegister])
}

func TestClearScreen(t *testing.T) {
	vm := newTestVM(t, 0x00E0)
	for i := range vm.gfx {
		vm.gfx[i] = 1
	}

	stepN(t, vm, 1)
	assert.Equal(t, make([]uint8, ScreenWidth*ScreenHeight), vm.Screen())
	assert.True(t, vm.ShouldClear())
}

func TestDisassemble(t *testing.T) {
	tests := []struct {
		word uint16
		want string
	}{
		{0x00E0, "cls"},
		{0x00EE, "rts"},
		{0x1208, "jmp 0x0208"},
		{0x2300, "jsr 0x0300"},
		{0x3A10, "skeq va, 16"},
		{0x5AB0, "skeq va, vb"},
		{0x730A, "add v3, 10"},
		{0x8124, "add v1, v2"},
		{0x812E, "shl v1"},
		{0xA2F0, "mvi 0x02f0"},
		{0xC30F, "rand v3, 0x0f"},
		{0xD125, "sprite v1, v2, 5"},
		{0xE19E, "skpr v1"},
		{0xF50A, "key v5"},
		{0xF355, "str v0-v3"},
		{0x5001, "data 0x5001"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Disassemble(tt.word), "0x%04x", tt.word)
	}
}
