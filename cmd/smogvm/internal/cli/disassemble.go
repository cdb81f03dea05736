package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"

	"github.com/kristofer/smogvm/pkg/bytecode"
	"github.com/kristofer/smogvm/pkg/intern"
	"github.com/kristofer/smogvm/pkg/object"
)

func newDisassembleCommand() *cobra.Command {
	var showProtos bool
	cmd := &cobra.Command{
		Use:   "disassemble <file>",
		Short: "print instructions and constants, optionally a prototype-chain tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool := intern.New()
			chunk, err := loadChunk(args[0], pool)
			if err != nil {
				return err
			}
			fmt.Print(bytecode.Disassemble(chunk, "<script>"))
			for _, c := range chunk.Constants {
				if fn, ok := c.(*bytecode.Function); ok && fn.Chunk != nil {
					fmt.Print(bytecode.Disassemble(fn.Chunk, fn.Name))
				}
			}
			if showProtos {
				fmt.Println(protoTree(chunk).String())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showProtos, "protos", false, "also print the struct-type/prototype tree")
	return cmd
}

// protoTree renders the built-in prototype chain (Object <- Array,
// String, Number, Function) plus every struct type declared anywhere
// in chunk's constant pool, recursing into nested function chunks
// since STRUCT_TYPE constants live wherever the `struct` statement that
// declared them was compiled.
func protoTree(chunk *bytecode.Chunk) treeprint.Tree {
	tree := treeprint.New()
	tree.SetValue("Object")
	for _, name := range []string{"Array", "String", "Number", "Function"} {
		tree.AddNode(name)
	}

	structsNode := tree.AddBranch("struct types")
	walkStructTypes(chunk, structsNode, map[*bytecode.Chunk]bool{})
	return tree
}

func walkStructTypes(chunk *bytecode.Chunk, into treeprint.Tree, seen map[*bytecode.Chunk]bool) {
	if chunk == nil || seen[chunk] {
		return
	}
	seen[chunk] = true
	for _, c := range chunk.Constants {
		switch v := c.(type) {
		case *object.StructType:
			into.AddNode(fmt.Sprintf("%s{%s}", v.Name, strings.Join(v.Fields, ", ")))
		case *bytecode.Function:
			walkStructTypes(v.Chunk, into, seen)
		}
	}
}
