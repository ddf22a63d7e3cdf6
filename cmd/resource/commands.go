package resource

import (
	"encoding/json"
	"fmt"

	"github.com/sinkdb/core/corekey"
	"github.com/spf13/cobra"
)

var (
	createCmd = &cobra.Command{
		Use:   "create [resource] [type] [json-payload]",
		Short: "Create a new entity",
		Args:  cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			payload, err := decodePayload(args[2])
			if err != nil {
				return err
			}
			id, err := rpcClient.Create(args[0], args[1], payload)
			if err != nil {
				return err
			}
			fmt.Printf("created id=%s\n", id.String())
			return nil
		},
	}

	modifyCmd = &cobra.Command{
		Use:   "modify [resource] [type] [id] [json-payload]",
		Short: "Modify an existing entity",
		Args:  cobra.ExactArgs(4),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := corekey.ParseIdentifier(args[2])
			if err != nil {
				return err
			}
			payload, err := decodePayload(args[3])
			if err != nil {
				return err
			}
			if err := rpcClient.Modify(id, args[0], args[1], payload); err != nil {
				return err
			}
			fmt.Println("modified successfully")
			return nil
		},
	}

	removeCmd = &cobra.Command{
		Use:   "remove [resource] [type] [id]",
		Short: "Remove an entity",
		Args:  cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := corekey.ParseIdentifier(args[2])
			if err != nil {
				return err
			}
			if err := rpcClient.Remove(id, args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("removed successfully")
			return nil
		},
	}

	queryCmd = &cobra.Command{
		Use:   "query [type]",
		Short: "Query entities of one type, optionally filtered by a property",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resourceFilter, _ := cmd.Flags().GetString("resource")
			property, _ := cmd.Flags().GetString("property")
			value, _ := cmd.Flags().GetString("value")

			matches, err := rpcClient.Query(resourceFilter, args[0], property, value)
			if err != nil {
				return err
			}
			for _, m := range matches {
				data, err := json.Marshal(m.Payload)
				if err != nil {
					return err
				}
				fmt.Printf("%s\t%s\n", m.ID, data)
			}
			fmt.Printf("%d match(es)\n", len(matches))
			return nil
		},
	}

	syncCmd = &cobra.Command{
		Use:   "sync [resource]",
		Short: "Trigger a synchronization run against a resource's remote source",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := rpcClient.Synchronize(args[0]); err != nil {
				return err
			}
			fmt.Println("synchronized successfully")
			return nil
		},
	}

	flushCmd = &cobra.Command{
		Use:   "flush [resource...]",
		Short: "Wait for every live query to catch up with all committed writes (every consumer is flushed, whichever resources are named)",
		RunE: func(_ *cobra.Command, args []string) error {
			if err := rpcClient.Flush(args...); err != nil {
				return err
			}
			fmt.Println("flushed successfully")
			return nil
		},
	}
)

func init() {
	queryCmd.Flags().String("resource", "", "Restrict matches to entities owned by this resource instance")
	queryCmd.Flags().String("property", "", "Indexed property to filter on")
	queryCmd.Flags().String("value", "", "Value the property must equal")
}

// decodePayload parses a CLI-supplied payload argument as JSON, falling back
// to the raw string for entity types whose adaptor expects something else.
func decodePayload(raw string) (interface{}, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return raw, nil
	}
	return doc, nil
}
