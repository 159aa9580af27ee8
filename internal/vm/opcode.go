package vm

import (
	"context"
	"fmt"
	"log/slog"
)

type opcode uint16

func (op opcode) x() uint16   { return (uint16(op) & 0x0F00) >> 8 }
func (op opcode) y() uint16   { return (uint16(op) & 0x00F0) >> 4 }
func (op opcode) n() uint16   { return uint16(op) & 0x000F }
func (op opcode) nn() uint8   { return uint8(op & 0x00FF) }
func (op opcode) nnn() uint16 { return uint16(op) & 0x0FFF }

// Disassemble returns the mnemonic of a single instruction word.
func Disassemble(word uint16) string {
	op := opcode(word)
	return decode(op).Name(op)
}

func (vm *VM) executeOpcode(ctx context.Context, op opcode) error {
	instr := decode(op)

	if slog.Default().Enabled(ctx, slog.LevelDebug) {
		slog.Debug(
			"exec",
			"pc", fmt.Sprintf("0x%04x", vm.pc-InstructionSize),
			"opcode", fmt.Sprintf("0x%04x", uint16(op)),
			"instr", instr.Name(op),
		)
	}

	return instr.Execute(ctx, vm, op)
}

// instruction executes after the fetch has already moved pc past it, so
// jumps overwrite pc and skips add one more InstructionSize.
type instruction struct {
	Name    func(op opcode) string
	Execute func(ctx context.Context, vm *VM, op opcode) error
}

func decode(op opcode) instruction {
	switch op & 0xF000 {
	case 0x0000:
		switch op {
		case 0x00E0:
			// 00E0 - Clear screen
			return clsInstruction

		case 0x00EE:
			// 00EE - Return from subroutine
			return rtsInstruction
		}

	case 0x1000:
		// 1NNN - Jumps to address NNN
		return jmpInstruction

	case 0x2000:
		// 2NNN - Calls subroutine at NNN
		return jsrInstruction

	case 0x3000:
		// 3XNN - Skips the next instruction if VX equals NN
		return skeq1Instruction

	case 0x4000:
		// 4XNN - Skips the next instruction if VX does not equal NN
		return skne1Instruction

	case 0x5000:
		// 5XY0 - Skips the next instruction if VX equals VY
		if op.n() == 0 {
			return skeq2Instruction
		}

	case 0x6000:
		// 6XNN - Sets VX to NN
		return mov1Instruction

	case 0x7000:
		// 7XNN - Adds NN to VX, no carry
		return add1Instruction

	case 0x8000:
		// 8XY_
		switch op.n() {
		case 0x0:
			// 8XY0 - Sets VX to the value of VY
			return mov2Instruction

		case 0x1:
			// 8XY1 - Sets VX to (VX OR VY)
			return orInstruction

		case 0x2:
			// 8XY2 - Sets VX to (VX AND VY)
			return andInstruction

		case 0x3:
			// 8XY3 - Sets VX to (VX XOR VY)
			return xorInstruction

		case 0x4:
			// 8XY4 - Adds VY to VX. VF is set to 1 when there's a carry, and to 0 when there isn't.
			return add2Instruction

		case 0x5:
			// 8XY5 - VY is subtracted from VX. VF is set to 1 when VX > VY, and 0 otherwise.
			return subInstruction

		case 0x6:
			// 8XY6 - Shifts VX right by one. VF is set to the value of the least significant bit of VX before the shift.
			return shrInstruction

		case 0x7:
			// 8XY7 - Sets VX to VY minus VX. VF is set to 1 when VY > VX, and 0 otherwise.
			return rsbInstruction

		case 0xE:
			// 8XYE - Shifts VX left by one. VF is set to the most significant bit of VX before the shift.
			return shlInstruction
		}

	case 0x9000:
		// 9XY0 - Skips the next instruction if VX doesn't equal VY
		if op.n() == 0 {
			return skne2Instruction
		}

	case 0xA000:
		// ANNN - Sets I to the address NNN
		return mviInstruction

	case 0xB000:
		// BNNN - Jumps to the address NNN plus V0
		return jmiInstruction

	case 0xC000:
		// CXNN - Sets VX to a random number, masked by NN
		return randInstruction

	case 0xD000:
		// DXYN - Draws a sprite at coordinate (VX, VY) that has a width of 8
		// pixels and a height of N pixels, read from memory at I.
		// VF is set to 1 if any screen pixels are flipped from set to unset.
		return spriteInstruction

	case 0xE000:
		switch op.nn() {
		case 0x9E:
			// EX9E - Skips the next instruction if the key stored in VX is pressed
			return skprInstruction

		case 0xA1:
			// EXA1 - Skips the next instruction if the key stored in VX isn't pressed
			return skupInstruction
		}

	case 0xF000:
		switch op.nn() {
		case 0x07:
			// FX07 - Sets VX to the value of the delay timer
			return gdelayInstruction

		case 0x0A:
			// FX0A - A key press is awaited, and then stored in VX
			return keyInstruction

		case 0x15:
			// FX15 - Sets the delay timer to VX
			return sdelayInstruction

		case 0x18:
			// FX18 - Sets the sound timer to VX
			return ssoundInstruction

		case 0x1E:
			// FX1E - Adds VX to I, VF is untouched
			return adiInstruction

		case 0x29:
			// FX29 - Sets I to the location of the font glyph for the
			// character in VX
			return fontInstruction

		case 0x33:
			// FX33 - Stores the decimal digits of VX at I, I+1 and I+2
			return bcdInstruction

		case 0x55:
			// FX55 - Stores V0 to VX in memory starting at address I
			return strInstruction

		case 0x65:
			// FX65 - Reads memory starting at address I into V0...VX
			return ldrInstruction
		}
	}

	return unknownInstruction
}

func (vm *VM) skipIf(cond bool) {
	if cond {
		vm.pc += InstructionSize
	}
}

// setWithFlag writes the result first so that VF ends up holding the flag
// when X is F.
func (vm *VM) setWithFlag(vX uint16, value uint8, flag bool) {
	vm.registers[vX] = value
	if flag {
		vm.registers[flagRegister] = 1
	} else {
		vm.registers[flagRegister] = 0
	}
}

var (
	// 00E0	cls	Clear the screen
	clsInstruction = instruction{
		Name: func(op opcode) string {
			return "cls"
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			for i := range vm.gfx {
				vm.gfx[i] = 0
			}
			vm.clearFlag = true
			return nil
		},
	}

	// 00EE	rts	return from subroutine call
	rtsInstruction = instruction{
		Name: func(op opcode) string {
			return "rts"
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			if addr, ok := vm.stack.pop(); ok {
				vm.pc = addr
			}
			return nil
		},
	}

	// 1xxx	jmp xxx	jump to address xxx
	jmpInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("jmp 0x%04x", op.nnn())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			target := op.nnn()
			vm.halted = target == vm.pc-InstructionSize
			vm.pc = target
			return nil
		},
	}

	// 2xxx	jsr xxx	jump to subroutine at address xxx
	jsrInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("jsr 0x%04x", op.nnn())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			vm.stack.push(vm.pc)
			vm.pc = op.nnn()
			return nil
		},
	}

	// 3rxx	skeq vr,xx	skip if register r = constant
	skeq1Instruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("skeq v%x, %d", op.x(), op.nn())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			vm.skipIf(vm.registers[op.x()] == op.nn())
			return nil
		},
	}

	// 4rxx	skne vr,xx	skip if register r <> constant
	skne1Instruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("skne v%x, %d", op.x(), op.nn())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			vm.skipIf(vm.registers[op.x()] != op.nn())
			return nil
		},
	}

	// 5ry0	skeq vr,vy	skip if register r = register y
	skeq2Instruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("skeq v%x, v%x", op.x(), op.y())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			vm.skipIf(vm.registers[op.x()] == vm.registers[op.y()])
			return nil
		},
	}

	// 6rxx	mov vr,xx	move constant to register r
	mov1Instruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("mov v%x, %d", op.x(), op.nn())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			vm.registers[op.x()] = op.nn()
			return nil
		},
	}

	// 7rxx	add vr,xx	add constant to register r	No carry generated
	add1Instruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("add v%x, %d", op.x(), op.nn())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			vm.registers[op.x()] += op.nn()
			return nil
		},
	}

	// 8ry0	mov vr,vy	move register vy into vr
	mov2Instruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("mov v%x, v%x", op.x(), op.y())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			vm.registers[op.x()] = vm.registers[op.y()]
			return nil
		},
	}

	// 8ry1	or rx,ry	or register vy into register vx
	orInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("or v%x, v%x", op.x(), op.y())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			vm.registers[op.x()] |= vm.registers[op.y()]
			return nil
		},
	}

	// 8ry2	and rx,ry	and register vy into register vx
	andInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("and v%x, v%x", op.x(), op.y())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			vm.registers[op.x()] &= vm.registers[op.y()]
			return nil
		},
	}

	// 8ry3	xor rx,ry	exclusive or register ry into register rx
	xorInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("xor v%x, v%x", op.x(), op.y())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			vm.registers[op.x()] ^= vm.registers[op.y()]
			return nil
		},
	}

	// 8ry4	add vr,vy	add register vy to vr,carry in vf
	add2Instruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("add v%x, v%x", op.x(), op.y())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			x := vm.registers[op.x()]
			y := vm.registers[op.y()]

			sum := uint16(x) + uint16(y)
			vm.setWithFlag(op.x(), uint8(sum), sum > 0xFF)
			return nil
		},
	}

	// 8ry5	sub vr,vy	subtract register vy from vr	vf set to 1 if vr > vy
	subInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("sub v%x, v%x", op.x(), op.y())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			x := vm.registers[op.x()]
			y := vm.registers[op.y()]

			vm.setWithFlag(op.x(), x-y, x > y)
			return nil
		},
	}

	// 8r06	shr vr	shift register vr right, bit 0 goes into register vf
	shrInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("shr v%x", op.x())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			x := vm.registers[op.x()]

			vm.setWithFlag(op.x(), x>>1, x&0x01 != 0)
			return nil
		},
	}

	// 8ry7	rsb vr,vy	subtract register vr from register vy, result in vr	vf set to 1 if vy > vr
	rsbInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("rsb v%x, v%x", op.x(), op.y())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			x := vm.registers[op.x()]
			y := vm.registers[op.y()]

			vm.setWithFlag(op.x(), y-x, y > x)
			return nil
		},
	}

	// 8r0e	shl vr	shift register vr left, bit 7 goes into register vf as 0 or 1
	shlInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("shl v%x", op.x())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			x := vm.registers[op.x()]

			vm.setWithFlag(op.x(), x<<1, x&0x80 != 0)
			return nil
		},
	}

	// 9ry0	skne rx,ry	skip if rx <> ry
	skne2Instruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("skne v%x, v%x", op.x(), op.y())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			vm.skipIf(vm.registers[op.x()] != vm.registers[op.y()])
			return nil
		},
	}

	// axxx	mvi xxx	Load index register with constant xxx
	mviInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("mvi 0x%04x", op.nnn())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			vm.index = op.nnn()
			return nil
		},
	}

	// bxxx	jmi xxx	Jump to address xxx+register v0
	jmiInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("jmi 0x%04x", op.nnn())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			vm.pc = op.nnn() + uint16(vm.registers[0])
			return nil
		},
	}

	// crxx	rand vr,xx	vr = random byte masked by xx
	randInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("rand v%x, 0x%02x", op.x(), op.nn())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			vm.registers[op.x()] = vm.random() & op.nn()
			return nil
		},
	}

	// drys	sprite rx,ry,s	Draw sprite at screen location rx,ry height s
	// The origin wraps around the screen, the sprite itself is clipped at
	// the right and bottom edges. All drawing is xor drawing.
	spriteInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("sprite v%x, v%x, %d", op.x(), op.y(), op.n())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			xLocation := uint16(vm.registers[op.x()]) % ScreenWidth
			yLocation := uint16(vm.registers[op.y()]) % ScreenHeight
			height := op.n()

			vm.registers[flagRegister] = 0
			for y := uint16(0); y < height; y++ {
				screenY := yLocation + y
				if screenY >= ScreenHeight {
					break
				}

				pixel := vm.memory[vm.addr(y)]

				const width = uint16(8)
				for x := uint16(0); x < width; x++ {
					screenX := xLocation + x
					if screenX >= ScreenWidth {
						break
					}

					mask := uint8(0x80 >> x)
					if pixel&mask == 0 {
						continue
					}

					screenAddr := screenY*ScreenWidth + screenX
					if vm.gfx[screenAddr] != 0 {
						vm.gfx[screenAddr] = 0
						vm.registers[flagRegister] = 1
					} else {
						vm.gfx[screenAddr] = 1
					}
				}
			}

			vm.drawFlag = true
			return nil
		},
	}

	// ek9e	skpr k	skip if key (register rk) pressed
	skprInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("skpr v%x", op.x())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			vm.skipIf(vm.isPressed(vm.registers[op.x()]))
			return nil
		},
	}

	// eka1	skup k	skip if key (register rk) not pressed
	skupInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("skup v%x", op.x())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			vm.skipIf(!vm.isPressed(vm.registers[op.x()]))
			return nil
		},
	}

	// fr07	gdelay vr	get delay timer into vr
	gdelayInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("gdelay v%x", op.x())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			vm.registers[op.x()] = vm.delayTimer
			return nil
		},
	}

	// fr0a	key vr	wait for for keypress,put key in register vr
	keyInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("key v%x", op.x())
		},
		Execute: func(ctx context.Context, vm *VM, op opcode) error {
			key, err := vm.keypad.WaitKey(ctx)
			if err != nil {
				// Leave pc on this instruction so nothing is half done.
				vm.pc -= InstructionSize
				return fmt.Errorf("wait for key: %w", err)
			}

			vm.registers[op.x()] = uint8(key)
			return nil
		},
	}

	// fr15	sdelay vr	set the delay timer to vr
	sdelayInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("sdelay v%x", op.x())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			vm.delayTimer = vm.registers[op.x()]
			return nil
		},
	}

	// fr18	ssound vr	set the sound timer to vr
	ssoundInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("ssound v%x", op.x())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			vm.soundTimer = vm.registers[op.x()]
			return nil
		},
	}

	// fr1e	adi vr	add register vr to the index register
	adiInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("adi v%x", op.x())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			vm.index += uint16(vm.registers[op.x()])
			return nil
		},
	}

	// fr29	font vr	point I to the sprite for hexadecimal character in vr	Sprite is 5 bytes high
	fontInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("font v%x", op.x())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			vm.index = uint16(vm.registers[op.x()]) * FontGlyphSize
			return nil
		},
	}

	// fr33	bcd vr	store the bcd representation of register vr at location I,I+1,I+2	Doesn't change I
	bcdInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("bcd v%x", op.x())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			x := vm.registers[op.x()]

			vm.memory[vm.addr(0)] = x / 100
			vm.memory[vm.addr(1)] = (x / 10) % 10
			vm.memory[vm.addr(2)] = x % 10
			return nil
		},
	}

	// fr55	str v0-vr	store registers v0-vr at location I onwards	Doesn't change I
	strInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("str v0-v%x", op.x())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			for i := uint16(0); i <= op.x(); i++ {
				vm.memory[vm.addr(i)] = vm.registers[i]
			}
			return nil
		},
	}

	// fr65	ldr v0-vr	load registers v0-vr from location I onwards	Doesn't change I
	ldrInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("ldr v0-v%x", op.x())
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			for i := uint16(0); i <= op.x(); i++ {
				vm.registers[i] = vm.memory[vm.addr(i)]
			}
			return nil
		},
	}

	// Unmapped words execute as no-ops.
	unknownInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("data 0x%04x", uint16(op))
		},
		Execute: func(_ context.Context, vm *VM, op opcode) error {
			return nil
		},
	}
)

func (vm *VM) isPressed(value uint8) bool {
	if value >= KeyCount {
		return false
	}
	return vm.keypad.IsPressed(Key(value))
}
