/*
Package webdriver is a small WebDriver client used to drive a browser through
a ChromeDriver, GeckoDriver or Selenium server.

It covers the commands needed to open a page, locate elements, type into them,
click them and read page state back. Sessions are usually not created directly;
package session wraps creation and release so that a browser is always shut
down, whatever the action does.

Example usage:

	// Errors are ignored for brevity.
	caps := webdriver.Capabilities{"browserName": "chrome"}
	wd, _ := webdriver.NewRemote(caps, "http://localhost:9515")
	defer wd.Quit()

	wd.Get("https://highcourtchd.gov.in/clc.php")

	field, _ := wd.FindElement(webdriver.ByName, "t_f_date")
	field.SendKeys("21/03/2022")

	btn, _ := wd.FindElement(webdriver.ByName, "button")
	btn.Click()

To start a driver process locally, use StartService with ChromeDriver or
GeckoDriver and pass Service.Addr to NewRemote.
*/
package webdriver
