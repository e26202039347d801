// fencectl：租户围栏运维工具（校验配置、距离计算、离线判定、地理覆盖表维护）
package main

import (
	"fmt"
	"os"

	"geo-fence/internal/config"
)

func main() {
	config.LoadEnvFiles()
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
