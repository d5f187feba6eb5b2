// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/luxfi/unirpc"
	"github.com/luxfi/unirpc/ndarray"
)

func newCallCommand(ctx *commandContext) *cobra.Command {
	var (
		addr      string
		transport string
		wire      string
		kwFlags   []string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "call <handle> [json-arg...]",
		Short: "Call a handle on a running server and print the result",
		Example: `  unirpcd call add 2 3
  unirpcd call sum '{"rpc_tag":"__RPC_VAL_NDARRAY__","dtype":"int32","shape":[2,2],"data":"AQAAAAIAAAADAAAABAAAAA=="}'
  unirpcd call echo '"hi"' '[1, 2]'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("addr") {
				addr = dialAddress(cfg.Server.Bind)
			}
			if !cmd.Flags().Changed("transport") {
				transport = cfg.Server.Transport
			}
			if !cmd.Flags().Changed("wire") {
				wire = cfg.Codec.Wire
			}

			callArgs, err := parseJSONArgs(args[1:])
			if err != nil {
				return err
			}
			kwargs, err := parseKwargs(kwFlags)
			if err != nil {
				return err
			}
			codec, err := unirpc.WireCodec(wire)
			if err != nil {
				return err
			}

			callCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			client, err := unirpc.Dial(callCtx, addr,
				unirpc.WithTransport(transport),
				unirpc.WithCodec(codec),
				unirpc.WithShortTags(cfg.Codec.ShortTags),
			)
			if err != nil {
				return err
			}
			defer client.Close()

			result, err := client.Call(callCtx, args[0], callArgs, kwargs)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderResult(result))
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Server address (default derived from server.bind)")
	cmd.Flags().StringVar(&transport, "transport", "", "Transport: zmq, zap, http or grpc")
	cmd.Flags().StringVar(&wire, "wire", "", "Wire format: json or cbor")
	cmd.Flags().StringArrayVar(&kwFlags, "kw", nil, "Keyword argument as key=json (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Call timeout")
	return cmd
}

// dialAddress turns a bind address such as tcp://*:5555 into one a local
// client can connect to.
func dialAddress(bind string) string {
	return strings.Replace(bind, "*", "localhost", 1)
}

func parseJSONArgs(raw []string) ([]interface{}, error) {
	out := make([]interface{}, len(raw))
	for i, s := range raw {
		var v interface{}
		if err := (unirpc.JSONCodec{}).Decode([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseKwargs(raw []string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("keyword argument %q must be key=json", kv)
		}
		var v interface{}
		if err := (unirpc.JSONCodec{}).Decode([]byte(value), &v); err != nil {
			return nil, fmt.Errorf("keyword argument %s: %w", key, err)
		}
		out[key] = v
	}
	return out, nil
}

func renderResult(result []interface{}) string {
	rows := make([][]string, 0, len(result))
	for i, v := range result {
		typ, val := describeValue(v)
		rows = append(rows, []string{fmt.Sprint(i), typ, val})
	}
	return renderTable([]string{"#", "Type", "Value"}, rows, []columnAlignment{alignRight, alignLeft, alignLeft})
}

func describeValue(v interface{}) (string, string) {
	if a, ok := unirpc.AsArray(v); ok {
		return a.String(), fmt.Sprint(ndarray.Values[float64](a))
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%T", v), fmt.Sprint(v)
	}
	return fmt.Sprintf("%T", v), string(b)
}
