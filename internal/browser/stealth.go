package browser

import (
	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"
)

// maskScript is injected into every new document before any page script runs.
// It papers over the headless-Chrome fingerprints that the go-rod/stealth
// evasions do not cover on their own.
const maskScript = `
(function() {
    'use strict';

    // navigator.webdriver must read as undefined
    Object.defineProperty(navigator, 'webdriver', {
        get: () => undefined,
        configurable: true
    });
    try {
        delete Object.getPrototypeOf(navigator).webdriver;
    } catch (e) {}

    // Headless Chrome ships an empty plugin list, which is a dead giveaway
    try {
        const mockPlugins = [
            { name: 'Chrome PDF Plugin', description: 'Portable Document Format', filename: 'internal-pdf-viewer' },
            { name: 'Chrome PDF Viewer', description: '', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai' },
            { name: 'Native Client', description: '', filename: 'internal-nacl-plugin' }
        ];
        const pluginArray = Object.create(PluginArray.prototype);
        mockPlugins.forEach((p, i) => {
            const plugin = Object.create(Plugin.prototype);
            Object.defineProperties(plugin, {
                name: { value: p.name, enumerable: true },
                description: { value: p.description, enumerable: true },
                filename: { value: p.filename, enumerable: true }
            });
            pluginArray[i] = plugin;
            pluginArray[p.name] = plugin;
        });
        Object.defineProperty(pluginArray, 'length', { value: mockPlugins.length });
        Object.defineProperty(pluginArray, 'item', { value: (i) => pluginArray[i] || null });
        Object.defineProperty(pluginArray, 'namedItem', { value: (n) => pluginArray[n] || null });
        Object.defineProperty(navigator, 'plugins', {
            get: () => pluginArray,
            configurable: true
        });
    } catch (e) {}

    Object.defineProperty(navigator, 'languages', {
        get: () => Object.freeze(['en-US', 'en']),
        configurable: true
    });

    // window.chrome is missing in some headless contexts
    if (!window.chrome) {
        Object.defineProperty(window, 'chrome', {
            value: {},
            writable: true,
            enumerable: true,
            configurable: false
        });
    }
    if (!window.chrome.runtime) {
        window.chrome.runtime = {
            get id() { return undefined; },
            connect: function() {},
            sendMessage: function() {}
        };
    }

    // Notification permission query must match Notification.permission
    try {
        const originalQuery = Permissions.prototype.query;
        Permissions.prototype.query = function(parameters) {
            if (parameters.name === 'notifications') {
                return Promise.resolve({ state: Notification.permission });
            }
            return originalQuery.call(this, parameters);
        };
    } catch (e) {}

    // SwiftShader strings in the WebGL renderer expose headless mode
    const getParameterProxyHandler = {
        apply: function(target, ctx, args) {
            const param = args[0];
            const result = Reflect.apply(target, ctx, args);
            if (param === 37445) { // UNMASKED_VENDOR_WEBGL
                return 'Intel Inc.';
            }
            if (param === 37446) { // UNMASKED_RENDERER_WEBGL
                return 'Intel Iris OpenGL Engine';
            }
            return result;
        }
    };
    try {
        const webglGetParameter = WebGLRenderingContext.prototype.getParameter;
        WebGLRenderingContext.prototype.getParameter = new Proxy(webglGetParameter, getParameterProxyHandler);
    } catch (e) {}
    try {
        const webgl2GetParameter = WebGL2RenderingContext.prototype.getParameter;
        WebGL2RenderingContext.prototype.getParameter = new Proxy(webgl2GetParameter, getParameterProxyHandler);
    } catch (e) {}

    if (navigator.hardwareConcurrency === 0 || navigator.hardwareConcurrency === undefined) {
        Object.defineProperty(navigator, 'hardwareConcurrency', {
            get: () => 4,
            configurable: true
        });
    }
    if (navigator.deviceMemory === undefined || navigator.deviceMemory === 0) {
        Object.defineProperty(navigator, 'deviceMemory', {
            get: () => 8,
            configurable: true
        });
    }
    if (!navigator.connection) {
        Object.defineProperty(navigator, 'connection', {
            get: () => ({ effectiveType: '4g', rtt: 100, downlink: 10, saveData: false }),
            configurable: true
        });
    }
})();
`

// newStealthPage creates a page in the given browser context with all
// fingerprint masking applied before any document loads. This is a one-time,
// context-scoped initialization; navigations reuse the same page.
func newStealthPage(b *rod.Browser) (*rod.Page, error) {
	page, err := stealth.Page(b)
	if err != nil {
		return nil, err
	}

	if _, err := page.EvalOnNewDocument(maskScript); err != nil {
		page.Close()
		return nil, err
	}

	return page, nil
}
