/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// zroctl is an operator tool for poking Roku devices directly: LAN
// discovery, queries, and key/launch commands without the daemon.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/zrocontrol/zrocontrol/pkg/discovery"
	"github.com/zrocontrol/zrocontrol/pkg/ecp"
	"github.com/zrocontrol/zrocontrol/pkg/logger"
)

const usage = `usage: zroctl <command> [flags]

commands:
  discover   probe the LAN for Roku devices
  info       query device info
  apps       list installed channels
  active     show the foreground channel
  keypress   send a remote key press
  keydown    press and hold a key
  keyup      release a held key
  launch     launch a channel by id
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	lg, err := logger.New(&logger.Config{Level: "error", Output: "stderr"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "zroctl: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	switch os.Args[1] {
	case "discover":
		err = runDiscover(ctx, lg, os.Args[2:])
	case "info":
		err = withClient(os.Args[2:], lg, func(c *ecp.Client) error {
			info, err := c.DeviceInfo(ctx)
			if err != nil {
				return err
			}

			return printJSON(info)
		})
	case "apps":
		err = withClient(os.Args[2:], lg, func(c *ecp.Client) error {
			apps, err := c.Apps(ctx)
			if err != nil {
				return err
			}

			return printJSON(apps)
		})
	case "active":
		err = withClient(os.Args[2:], lg, func(c *ecp.Client) error {
			active, err := c.ActiveApp(ctx)
			if err != nil {
				return err
			}

			if active == nil {
				fmt.Println("no active app")
				return nil
			}

			return printJSON(active)
		})
	case "keypress", "keydown", "keyup":
		err = runKey(ctx, lg, os.Args[1], os.Args[2:])
	case "launch":
		err = runLaunch(ctx, lg, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "zroctl: %v\n", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(data))

	return nil
}

func runDiscover(ctx context.Context, lg logger.Logger, args []string) error {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	timeout := fs.Float64("timeout", 2.0, "listen window in seconds")
	noInfo := fs.Bool("no-info", false, "skip device-info enrichment")
	_ = fs.Parse(args)

	d := discovery.New(lg)
	d.FetchDeviceInfo = !*noInfo

	devices, err := d.Discover(ctx, time.Duration(*timeout*float64(time.Second)))
	if err != nil {
		return err
	}

	if len(devices) == 0 {
		fmt.Println("no devices found")
		return nil
	}

	return printJSON(devices)
}

func withClient(args []string, lg logger.Logger, fn func(*ecp.Client) error) error {
	fs := flag.NewFlagSet("device", flag.ExitOnError)
	ip := fs.String("ip", "", "device address")
	timeout := fs.Float64("timeout", 3.0, "request timeout in seconds")
	_ = fs.Parse(args)

	client, err := ecp.NewClient(*ip, time.Duration(*timeout*float64(time.Second)), lg)
	if err != nil {
		return err
	}

	return fn(client)
}

func runKey(ctx context.Context, lg logger.Logger, command string, args []string) error {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	ip := fs.String("ip", "", "device address")
	key := fs.String("key", "", "remote key, e.g. Home, Select, Up")
	_ = fs.Parse(args)

	return withClient([]string{"-ip", *ip}, lg, func(c *ecp.Client) error {
		switch command {
		case "keydown":
			return c.Keydown(ctx, *key)
		case "keyup":
			return c.Keyup(ctx, *key)
		default:
			return c.Keypress(ctx, *key)
		}
	})
}

func runLaunch(ctx context.Context, lg logger.Logger, args []string) error {
	fs := flag.NewFlagSet("launch", flag.ExitOnError)
	ip := fs.String("ip", "", "device address")
	appID := fs.String("app", "", "channel id")
	_ = fs.Parse(args)

	return withClient([]string{"-ip", *ip}, lg, func(c *ecp.Client) error {
		return c.Launch(ctx, *appID)
	})
}
