package aqs

import "runtime"

func runtimeGosched() { runtime.Gosched() }
