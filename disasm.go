package main

import (
	"fmt"
	"io"

	"github.com/kapitanov/chip8emu/internal/vm"
	"github.com/spf13/cobra"
)

func newDisasmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm PATH_TO_ROM_FILE",
		Short: "Print the instructions of a ROM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bs, err := loadROM(args[0])
			if err != nil {
				return err
			}

			return disassemble(cmd.OutOrStdout(), bs)
		},
	}
}

// disassemble lists every 2-byte word of the program as if it were code.
// A trailing odd byte is printed as data.
func disassemble(w io.Writer, program []byte) error {
	for i := 0; i+1 < len(program); i += vm.InstructionSize {
		addr := int(vm.ProgramStart) + i
		word := uint16(program[i])<<8 | uint16(program[i+1])

		if _, err := fmt.Fprintf(w, "0x%04x  %04x  %s\n", addr, word, vm.Disassemble(word)); err != nil {
			return err
		}
	}

	if len(program)%2 != 0 {
		last := len(program) - 1
		if _, err := fmt.Fprintf(w, "0x%04x  %02x    data 0x%02x\n", int(vm.ProgramStart)+last, program[last], program[last]); err != nil {
			return err
		}
	}

	return nil
}
